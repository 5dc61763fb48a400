package harness

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE []byte

// Validation error codes (E100-E199)
const (
	ErrSchemaInvalid    = "E100" // embedded schema failed to compile
	ErrYAMLSyntax       = "E101" // file is not valid YAML
	ErrSchemaViolation  = "E102" // scenario does not match the schema
	ErrScenarioSemantic = "E103" // unknown cell, template or conflicting node kinds
)

// ValidationError represents a scenario validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateScenario checks scenario YAML against the embedded CUE schema and
// then against the semantic rules LoadScenario enforces.
// Returns all schema errors found (does not fail-fast); semantic checks run
// only once the schema passes.
func ValidateScenario(filename string, data []byte) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Field: "schema", Message: err.Error(), Code: ErrSchemaInvalid}}
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fromCUEError(err, ErrYAMLSyntax)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fromCUEError(err, ErrYAMLSyntax)
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fromCUEError(err, ErrSchemaViolation)
	}

	if _, err := ParseScenario(data); err != nil {
		return []ValidationError{{Field: "scenario", Message: err.Error(), Code: ErrScenarioSemantic}}
	}
	return nil
}

// fromCUEError splits a CUE error into one ValidationError per cause with
// its path and first source line.
func fromCUEError(err error, code string) []ValidationError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []ValidationError{{Field: "scenario", Message: err.Error(), Code: code}}
	}

	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "scenario"
		}
		format, args := e.Msg()
		out = append(out, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    lineOf(cueerrors.Positions(e)),
		})
	}
	return out
}

// lineOf returns the line of the first valid position, or 0.
func lineOf(positions []token.Pos) int {
	for _, pos := range positions {
		if pos.IsValid() {
			return pos.Line()
		}
	}
	return 0
}
