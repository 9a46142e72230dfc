package ledger

import (
	"errors"
	"fmt"
)

// Status is a ledger entry status.
type Status string

// Campaign lane statuses.
const (
	StatusIntake    Status = "intake"
	StatusDrafted   Status = "drafted"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusClosed    Status = "closed"
)

// Review lane statuses.
const (
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusCompleted  Status = "completed"
)

// Lane identifies which status machine an entry follows.
type Lane string

const (
	// LaneCampaign is the lightweight campaign flow.
	LaneCampaign Lane = "campaign"
	// LaneReview is the editorial-output flow with approval gating.
	LaneReview Lane = "review"
)

var (
	// ErrInvalidStatus is returned for statuses outside the declared vocabulary.
	ErrInvalidStatus = errors.New("invalid ledger status")
	// ErrInvalidTransition is returned when a status change is not a declared forward edge.
	ErrInvalidTransition = errors.New("invalid ledger status transition")
)

var laneOf = map[Status]Lane{
	StatusIntake:     LaneCampaign,
	StatusDrafted:    LaneCampaign,
	StatusScheduled:  LaneCampaign,
	StatusSent:       LaneCampaign,
	StatusClosed:     LaneCampaign,
	StatusInProgress: LaneReview,
	StatusInReview:   LaneReview,
	StatusCompleted:  LaneReview,
}

// transitions lists the forward edges. Skipping is only allowed where listed.
var transitions = map[Status][]Status{
	StatusIntake:     {StatusDrafted},
	StatusDrafted:    {StatusScheduled},
	StatusScheduled:  {StatusSent},
	StatusSent:       {StatusClosed},
	StatusInProgress: {StatusInReview, StatusCompleted},
	StatusInReview:   {StatusCompleted},
}

// Valid reports whether s belongs to the status vocabulary.
func (s Status) Valid() bool {
	_, ok := laneOf[s]
	return ok
}

// Lane returns the lane the status belongs to, or "" for unknown statuses.
func (s Status) Lane() Lane {
	return laneOf[s]
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Initial returns the status every entry of the lane starts in.
func (l Lane) Initial() Status {
	switch l {
	case LaneCampaign:
		return StatusIntake
	case LaneReview:
		return StatusInProgress
	default:
		return ""
	}
}

// Valid reports whether l is a known lane.
func (l Lane) Valid() bool {
	return l == LaneCampaign || l == LaneReview
}

// ParseStatus converts a string into a known Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// CanTransition reports whether from -> to is allowed. Staying in the same
// status is allowed so that field merges do not need a status change.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
