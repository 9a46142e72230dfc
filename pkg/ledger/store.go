package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an entry id does not exist.
	ErrNotFound = errors.New("ledger entry not found")
	// ErrExists is returned when creating an entry whose id is already taken.
	ErrExists = errors.New("ledger entry already exists")
)

// Store is the key-value contract every ledger backend implements.
// Update never creates: an unknown id yields ErrNotFound.
type Store interface {
	Create(ctx context.Context, entry Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Update(ctx context.Context, id string, patch Patch, now time.Time) (Entry, error)
	Close() error
}

// cloneEntry deep-copies the slices so callers cannot mutate stored state.
func cloneEntry(e Entry) Entry {
	e.Channels = append([]string(nil), e.Channels...)
	e.Tags = append([]string(nil), e.Tags...)
	e.History = append([]Transition(nil), e.History...)
	if e.Pending != nil {
		pending := make([]PendingAction, len(e.Pending))
		for i, p := range e.Pending {
			input := make(map[string]interface{}, len(p.Input))
			for k, v := range p.Input {
				input[k] = v
			}
			pending[i] = PendingAction{Tool: p.Tool, Input: input}
		}
		e.Pending = pending
	}
	if e.ApprovedAt != nil {
		at := *e.ApprovedAt
		e.ApprovedAt = &at
	}
	return e
}
