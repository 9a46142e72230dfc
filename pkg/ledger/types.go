package ledger

import (
	"sort"
	"time"
)

// Entry is one unit of work tracked end-to-end.
type Entry struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id,omitempty"`
	Lane            Lane            `json:"lane"`
	Title           string          `json:"title"`
	Summary         string          `json:"summary,omitempty"`
	Status          Status          `json:"status"`
	LinkedOutputID  string          `json:"linked_output_id,omitempty"`
	LinkedOutputURL string          `json:"linked_output_url,omitempty"`
	Channels        []string        `json:"channels,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	Pending         []PendingAction `json:"pending,omitempty"`
	History         []Transition    `json:"history,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PendingAction is a side effect withheld by approval gating.
type PendingAction struct {
	Tool  string                 `json:"tool"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// Transition records one status change in the entry's audit trail.
type Transition struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// HasPending reports whether the entry holds withheld side effects.
func (e Entry) HasPending() bool {
	return len(e.Pending) > 0
}

// Patch describes a merge into an existing entry. Nil fields are left unchanged.
// Channels and Tags are merged as set unions.
type Patch struct {
	Title           *string
	Summary         *string
	Status          *Status
	LinkedOutputID  *string
	LinkedOutputURL *string
	Channels        []string
	Tags            []string
	// Pending replaces the pending list when non-nil. An empty slice clears it.
	Pending *[]PendingAction
	// Approved stamps ApprovedAt.
	Approved bool
	// Precondition is checked against the stored entry inside the backend's
	// write transaction. A non-nil error aborts the update and is returned
	// as is. It may run more than once when a backend retries.
	Precondition func(Entry) error
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Summary == nil && p.Status == nil &&
		p.LinkedOutputID == nil && p.LinkedOutputURL == nil &&
		len(p.Channels) == 0 && len(p.Tags) == 0 && p.Pending == nil && !p.Approved
}

// applyPatch merges p into e. Every backend funnels mutations through here so
// transition rules are enforced identically.
func applyPatch(e Entry, p Patch, now time.Time) (Entry, error) {
	if p.Precondition != nil {
		if err := p.Precondition(e); err != nil {
			return Entry{}, err
		}
	}
	if p.Status != nil && *p.Status != e.Status {
		if err := ValidateTransition(e.Status, *p.Status); err != nil {
			return Entry{}, err
		}
		e.History = append(e.History, Transition{From: e.Status, To: *p.Status, At: now})
		e.Status = *p.Status
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Summary != nil {
		e.Summary = *p.Summary
	}
	if p.LinkedOutputID != nil {
		e.LinkedOutputID = *p.LinkedOutputID
	}
	if p.LinkedOutputURL != nil {
		e.LinkedOutputURL = *p.LinkedOutputURL
	}
	e.Channels = mergeSet(e.Channels, p.Channels)
	e.Tags = mergeSet(e.Tags, p.Tags)
	if p.Pending != nil {
		e.Pending = append([]PendingAction(nil), (*p.Pending)...)
	}
	if p.Approved {
		at := now
		e.ApprovedAt = &at
	}

	// updatedAt is monotonic even if the wall clock steps back.
	if now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
	return e, nil
}

func mergeSet(current, add []string) []string {
	if len(add) == 0 {
		return current
	}
	seen := make(map[string]struct{}, len(current)+len(add))
	out := make([]string, 0, len(current)+len(add))
	for _, v := range append(append([]string(nil), current...), add...) {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return mergeSet(nil, values)
}
