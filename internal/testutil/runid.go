package testutil

// FixedRunIDGenerator returns the same run ID every time.
//
// Golden journals compare byte-for-byte, so scenario runs need a stable ID.
// Unlike engine.FixedGenerator, which hands out a sequence and panics when
// exhausted, this never runs out.
//
// Implements engine.RunIDGenerator.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id. An empty id becomes
// "test-run".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run ID.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
