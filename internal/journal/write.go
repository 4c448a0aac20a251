package journal

import (
	"context"
	"encoding/json"
	"fmt"
)

// WriteReload appends r, assigning its Seq and RecordedAt. The assigned
// seq is returned.
func (j *Journal) WriteReload(ctx context.Context, r Reload) (int64, error) {
	sources, err := json.Marshal(nonNil(r.Sources))
	if err != nil {
		return 0, fmt.Errorf("write reload: %w", err)
	}
	counts := r.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return 0, fmt.Errorf("write reload: %w", err)
	}

	seq := j.seq.next()
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO reloads
		(seq, generation, sources, ok, error, counts, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		seq,
		r.Generation,
		string(sources),
		r.OK,
		r.Error,
		string(countsJSON),
		j.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("write reload: %w", err)
	}
	return seq, nil
}

// WriteTransition appends t, assigning its Seq and RecordedAt. The
// assigned seq is returned.
func (j *Journal) WriteTransition(ctx context.Context, t Transition) (int64, error) {
	actions, err := json.Marshal(nonNil(t.ActionSets))
	if err != nil {
		return 0, fmt.Errorf("write transition: %w", err)
	}

	seq := j.seq.next()
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO transitions
		(seq, generation, state_machine, from_state, to_state, event_set, action_sets, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		seq,
		t.Generation,
		t.StateMachineID,
		t.FromState,
		t.ToState,
		t.EventSetID,
		string(actions),
		j.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("write transition: %w", err)
	}
	return seq, nil
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
