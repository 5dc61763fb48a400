package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/quill/internal/ir"
)

// ErrRunNotFound is returned when a run ID has no journal entry.
var ErrRunNotFound = errors.New("run not found")

// Run is one scheduler lifetime recorded in the journal.
type Run struct {
	ID             string
	Seq            int64
	Label          string
	MaxDivergences int
	Window         int
}

// Reaction records one scope re-run within a pass.
type Reaction struct {
	Iteration int
	Seq       int
	ScopeID   uint64
	Label     string
}

// ErrorRecord records one instance error surfaced by a pass.
type ErrorRecord struct {
	Seq      int
	Code     string
	Instance string
	Message  string
}

// Pass is the journal form of one scheduler tick.
type Pass struct {
	RunID       string
	Tick        int64
	Iterations  int
	Converged   bool
	Divergences int
	DirtyTrace  []int
	Failure     string
	Reactions   []Reaction
	Errors      []ErrorRecord
}

// BeginRun inserts a run record. The run's seq is assigned as one past the
// highest existing seq so runs list in creation order.
func (s *Store) BeginRun(ctx context.Context, run Run) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("begin run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, label, max_divergences, divergence_window)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Seq, run.Label, run.MaxDivergences, run.Window)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("begin run: commit: %w", err)
	}
	return run, nil
}

// WritePass records a pass and its reactions and errors atomically.
// Writing the same (run, tick) twice is an error.
func (s *Store) WritePass(ctx context.Context, p Pass) error {
	trace, err := marshalTrace(p.DirtyTrace)
	if err != nil {
		return fmt.Errorf("write pass: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write pass: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO passes
		(run_id, tick, iterations, reactions, converged, divergences, dirty_trace, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.RunID,
		p.Tick,
		p.Iterations,
		len(p.Reactions),
		p.Converged,
		p.Divergences,
		trace,
		p.Failure,
	)
	if err != nil {
		return fmt.Errorf("write pass: %w", err)
	}

	for _, r := range p.Reactions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reactions (run_id, tick, iteration, seq, scope_id, label)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.RunID, p.Tick, r.Iteration, r.Seq, int64(r.ScopeID), r.Label)
		if err != nil {
			return fmt.Errorf("write reaction %d: %w", r.Seq, err)
		}
	}

	for _, e := range p.Errors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO instance_errors (run_id, tick, seq, code, instance, message)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.RunID, p.Tick, e.Seq, e.Code, e.Instance, e.Message)
		if err != nil {
			return fmt.Errorf("write instance error %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write pass: commit: %w", err)
	}
	return nil
}

// ListRuns returns every run ordered by seq.
// Returns an empty slice (not nil) when the journal is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, label, max_divergences, divergence_window
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Seq, &r.Label, &r.MaxDivergences, &r.Window); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns a single run. Returns ErrRunNotFound if absent.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, label, max_divergences, divergence_window
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Seq, &r.Label, &r.MaxDivergences, &r.Window)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// LatestRun returns the run with the highest seq.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return s.ReadRun(ctx, id)
}

// ReadPasses returns the passes of a run ordered by tick, each with its
// reactions and errors in seq order. When failedOnly is set, converged
// passes are skipped.
func (s *Store) ReadPasses(ctx context.Context, runID string, failedOnly bool) ([]Pass, error) {
	query := `
		SELECT run_id, tick, iterations, converged, divergences, dirty_trace, failure
		FROM passes
		WHERE run_id = ?`
	if failedOnly {
		query += ` AND converged = 0`
	}
	query += ` ORDER BY tick ASC`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}

	passes := []Pass{}
	for rows.Next() {
		var p Pass
		var trace string
		if err := rows.Scan(&p.RunID, &p.Tick, &p.Iterations, &p.Converged, &p.Divergences, &trace, &p.Failure); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		if p.DirtyTrace, err = unmarshalTrace(trace); err != nil {
			rows.Close()
			return nil, fmt.Errorf("pass %d: %w", p.Tick, err)
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	rows.Close()

	// Nested reads happen after the outer cursor is closed: the pool holds a
	// single connection.
	for i := range passes {
		if passes[i].Reactions, err = s.readReactions(ctx, runID, passes[i].Tick); err != nil {
			return nil, err
		}
		if passes[i].Errors, err = s.readErrors(ctx, runID, passes[i].Tick); err != nil {
			return nil, err
		}
	}
	return passes, nil
}

func (s *Store) readReactions(ctx context.Context, runID string, tick int64) ([]Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, seq, scope_id, label
		FROM reactions
		WHERE run_id = ? AND tick = ?
		ORDER BY seq ASC
	`, runID, tick)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	out := []Reaction{}
	for rows.Next() {
		var r Reaction
		var scope int64
		if err := rows.Scan(&r.Iteration, &r.Seq, &scope, &r.Label); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		r.ScopeID = uint64(scope)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return out, nil
}

func (s *Store) readErrors(ctx context.Context, runID string, tick int64) ([]ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, code, instance, message
		FROM instance_errors
		WHERE run_id = ? AND tick = ?
		ORDER BY seq ASC
	`, runID, tick)
	if err != nil {
		return nil, fmt.Errorf("query instance errors: %w", err)
	}
	defer rows.Close()

	out := []ErrorRecord{}
	for rows.Next() {
		var e ErrorRecord
		if err := rows.Scan(&e.Seq, &e.Code, &e.Instance, &e.Message); err != nil {
			return nil, fmt.Errorf("scan instance error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance errors: %w", err)
	}
	return out, nil
}

// marshalTrace stores the per-iteration dirty counts as canonical JSON.
func marshalTrace(trace []int) (string, error) {
	arr := make(ir.List, len(trace))
	for i, n := range trace {
		arr[i] = ir.Int(n)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal dirty trace: %w", err)
	}
	return string(data), nil
}

func unmarshalTrace(data string) ([]int, error) {
	out := []int{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal dirty trace: %w", err)
	}
	return out, nil
}
