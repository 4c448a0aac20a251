package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Filter narrows a read. Zero values match everything.
type Filter struct {
	Generation   string
	StateMachine *uint16
	AfterSeq     int64
	Limit        int
}

// Reloads returns reload entries ordered by seq.
// Returns an empty slice (not nil) if nothing matches.
func (j *Journal) Reloads(ctx context.Context, f Filter) ([]Reload, error) {
	query := `
		SELECT seq, generation, sources, ok, error, counts, recorded_at
		FROM reloads
		WHERE seq > ? AND (? = '' OR generation = ?)
		ORDER BY seq ASC`
	args := []any{f.AfterSeq, f.Generation, f.Generation}
	query, args = withLimit(query, args, f.Limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reloads: %w", err)
	}
	defer rows.Close()

	out := []Reload{}
	for rows.Next() {
		r, err := scanReload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reloads: %w", err)
	}
	return out, nil
}

// Transitions returns transition entries ordered by seq.
// Returns an empty slice (not nil) if nothing matches.
func (j *Journal) Transitions(ctx context.Context, f Filter) ([]Transition, error) {
	var machine any
	if f.StateMachine != nil {
		machine = int64(*f.StateMachine)
	}

	query := `
		SELECT seq, generation, state_machine, from_state, to_state, event_set, action_sets, recorded_at
		FROM transitions
		WHERE seq > ?
		  AND (? = '' OR generation = ?)
		  AND (? IS NULL OR state_machine = ?)
		ORDER BY seq ASC`
	args := []any{f.AfterSeq, f.Generation, f.Generation, machine, machine}
	query, args = withLimit(query, args, f.Limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	out := []Transition{}
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return query + " LIMIT ?", append(args, limit)
}

func scanReload(rows *sql.Rows) (Reload, error) {
	var (
		r        Reload
		sources  string
		counts   string
		recorded int64
	)
	if err := rows.Scan(&r.Seq, &r.Generation, &sources, &r.OK, &r.Error, &counts, &recorded); err != nil {
		return Reload{}, fmt.Errorf("scan reload: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return Reload{}, fmt.Errorf("decode reload %d sources: %w", r.Seq, err)
	}
	if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
		return Reload{}, fmt.Errorf("decode reload %d counts: %w", r.Seq, err)
	}
	r.RecordedAt = time.Unix(0, recorded).UTC()
	return r, nil
}

func scanTransition(rows *sql.Rows) (Transition, error) {
	var (
		t        Transition
		actions  string
		recorded int64
	)
	if err := rows.Scan(&t.Seq, &t.Generation, &t.StateMachineID, &t.FromState, &t.ToState, &t.EventSetID, &actions, &recorded); err != nil {
		return Transition{}, fmt.Errorf("scan transition: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &t.ActionSets); err != nil {
		return Transition{}, fmt.Errorf("decode transition %d action sets: %w", t.Seq, err)
	}
	t.RecordedAt = time.Unix(0, recorded).UTC()
	return t, nil
}
