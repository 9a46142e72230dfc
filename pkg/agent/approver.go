package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/quill/internal/observability"
	"github.com/harun/quill/internal/tracing"
	"github.com/harun/quill/pkg/ledger"
	"github.com/harun/quill/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ApproverConfig holds approver dependencies.
type ApproverConfig struct {
	Executor *toolexecutor.Executor
	Ledger   *ledger.Ledger
	Tenants  TenantResolver
	Logger   zerolog.Logger
}

// Approver is the human actor that releases withheld side effects. Approvals
// of the same entry are serialized.
type Approver struct {
	executor *toolexecutor.Executor
	ledger   *ledger.Ledger
	tenants  TenantResolver
	logger   zerolog.Logger
	locks    *keyedMutex
}

// ApprovalResult is the outcome of releasing an entry's pending actions.
type ApprovalResult struct {
	Entry ledger.Entry   `json:"entry"`
	Tools []ToolActivity `json:"tools"`
}

// NewApprover validates cfg and builds an Approver.
func NewApprover(cfg ApproverConfig) (*Approver, error) {
	observability.EnsureRegistered()

	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Tenants == nil {
		return nil, fmt.Errorf("tenant resolver is required")
	}
	return &Approver{
		executor: cfg.Executor,
		ledger:   cfg.Ledger,
		tenants:  cfg.Tenants,
		logger:   cfg.Logger.With().Str("component", "approver").Logger(),
		locks:    newKeyedMutex(),
	}, nil
}

// Approve executes the entry's pending actions in order and advances it.
// Review entries move in_review -> completed. Campaign entries move
// drafted -> scheduled when a send was scheduled.
//
// The pending list is claimed before anything runs: one conditional ledger
// update checks the entry still awaits approval, clears the list and stamps
// ApprovedAt. Only the caller whose claim succeeds executes the actions, so
// a second approval, from this process or another replica sharing the
// store, returns ErrNotAwaitingApproval instead of sending twice.
func (a *Approver) Approve(ctx context.Context, entryID string) (*ApprovalResult, error) {
	unlock := a.locks.Lock(entryID)
	defer unlock()

	entry, err := a.ledger.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !isAwaitingApproval(entry) {
		observability.RecordApproval(string(entry.Lane), "rejected")
		return nil, notAwaiting(entry)
	}

	tenant, err := a.tenants.Resolve(ctx, entry.TenantID)
	if err != nil {
		return nil, &ConfigurationError{TenantID: entry.TenantID, Err: err}
	}

	ctx = tracing.WithLedgerID(tracing.NewRunContext(ctx, entry.TenantID), entry.ID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.approve",
		attribute.String("ledger.lane", string(entry.Lane)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, a.logger)

	claimed, actions, err := a.claim(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, ErrNotAwaitingApproval) {
			observability.RecordApproval(string(entry.Lane), "rejected")
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("ledger.pending", len(actions)))

	toolCtx := toolexecutor.ContextWithRunContext(ctx, runContext(tenant))
	activities := make([]ToolActivity, 0, len(actions))
	scheduled := false
	for _, action := range actions {
		activity := activityFromResult(action.Tool, a.executor.Execute(toolCtx, action.Tool, action.Input))
		activities = append(activities, activity)
		if activity.OK && action.Tool == toolexecutor.ToolScheduleSend {
			scheduled = true
		}
		logger.Info().Str("tool", action.Tool).Bool("ok", activity.OK).Msg("Approved action executed")
	}

	var patch ledger.Patch
	switch claimed.Lane {
	case ledger.LaneReview:
		status := ledger.StatusCompleted
		patch.Status = &status
	case ledger.LaneCampaign:
		if scheduled {
			status := ledger.StatusScheduled
			patch.Status = &status
		}
	}
	if claimed.LinkedOutputURL == "" {
		if id, url := linkedOutput(nil, activities); url != "" {
			patch.LinkedOutputID = &id
			patch.LinkedOutputURL = &url
		}
	}

	updated := claimed
	if !patch.IsZero() {
		finalizeCtx, cancel := finalizeContext(ctx)
		updated, err = a.ledger.Update(finalizeCtx, claimed.ID, patch)
		cancel()
		if err != nil {
			// The actions ran and the claim holds, so a retry cannot resend.
			return nil, fmt.Errorf("failed to record approval on ledger entry %s: %w", claimed.ID, err)
		}
	}

	outcome := "approved"
	for _, act := range activities {
		if !act.OK {
			outcome = "partial"
			break
		}
	}
	observability.RecordApproval(string(entry.Lane), outcome)
	observability.RecordApprovalAudit(ctx, entry.ID, entry.TenantID, outcome, map[string]interface{}{
		"actions": len(activities),
		"from":    string(entry.Status),
		"to":      string(updated.Status),
	})
	logger.Info().
		Str("from", string(entry.Status)).
		Str("to", string(updated.Status)).
		Str("outcome", outcome).
		Msg("Ledger entry approved")

	return &ApprovalResult{Entry: updated, Tools: activities}, nil
}

// claim atomically takes the entry's pending actions. It fails with
// ErrNotAwaitingApproval when another approval got there first.
func (a *Approver) claim(ctx context.Context, entryID string) (ledger.Entry, []ledger.PendingAction, error) {
	var actions []ledger.PendingAction
	cleared := []ledger.PendingAction{}
	claimed, err := a.ledger.Update(ctx, entryID, ledger.Patch{
		Pending:  &cleared,
		Approved: true,
		Precondition: func(current ledger.Entry) error {
			if !isAwaitingApproval(current) {
				return notAwaiting(current)
			}
			actions = append(actions[:0], current.Pending...)
			return nil
		},
	})
	if err != nil {
		return ledger.Entry{}, nil, err
	}
	return claimed, actions, nil
}

func notAwaiting(entry ledger.Entry) error {
	return fmt.Errorf("%w: %s is %s", ErrNotAwaitingApproval, entry.ID, entry.Status)
}

func isAwaitingApproval(entry ledger.Entry) bool {
	switch entry.Lane {
	case ledger.LaneReview:
		return entry.Status == ledger.StatusInReview && entry.HasPending()
	case ledger.LaneCampaign:
		return entry.Status == ledger.StatusDrafted && entry.HasPending()
	default:
		return false
	}
}

// keyedMutex serializes work per key and forgets idle keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
