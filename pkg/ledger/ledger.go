package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/quill/internal/observability"
	"github.com/rs/zerolog"
)

const maxOpenAttempts = 5

// DefaultPrefixes maps each lane to its id prefix.
var DefaultPrefixes = map[Lane]string{
	LaneCampaign: "CMP",
	LaneReview:   "OUT",
}

// Options configures a Ledger.
type Options struct {
	// Prefixes overrides DefaultPrefixes per lane.
	Prefixes map[Lane]string
	// PublicBaseURL is used to build human-facing entry links.
	PublicBaseURL string
	Publisher     Publisher
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Ledger is the write path for entries: id generation, transition checks,
// events and metrics on top of a Store.
type Ledger struct {
	store     Store
	prefixes  map[Lane]string
	baseURL   string
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// OpenParams describes a new entry.
type OpenParams struct {
	Lane     Lane
	TenantID string
	Title    string
	Summary  string
	Channels []string
	Tags     []string
}

// New creates a Ledger over store.
func New(store Store, opts Options) *Ledger {
	observability.EnsureRegistered()

	prefixes := make(map[Lane]string, len(DefaultPrefixes))
	for lane, prefix := range DefaultPrefixes {
		prefixes[lane] = prefix
	}
	for lane, prefix := range opts.Prefixes {
		if prefix != "" {
			prefixes[lane] = prefix
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Ledger{
		store:     store,
		prefixes:  prefixes,
		baseURL:   strings.TrimRight(opts.PublicBaseURL, "/"),
		publisher: opts.Publisher,
		logger:    opts.Logger.With().Str("component", "ledger").Logger(),
		now:       now,
	}
}

// Open creates an entry in the lane's initial status. Id collisions are
// retried with a fresh id.
func (l *Ledger) Open(ctx context.Context, params OpenParams) (Entry, error) {
	if !params.Lane.Valid() {
		return Entry{}, fmt.Errorf("unknown ledger lane %q", params.Lane)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Entry{}, errors.New("ledger entry title is required")
	}

	now := l.now().UTC()
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		id, err := NewID(l.prefixes[params.Lane], now)
		if err != nil {
			return Entry{}, err
		}

		entry := Entry{
			ID:        id,
			TenantID:  params.TenantID,
			Lane:      params.Lane,
			Title:     title,
			Summary:   params.Summary,
			Status:    params.Lane.Initial(),
			Channels:  normalizeSet(params.Channels),
			Tags:      normalizeSet(params.Tags),
			CreatedAt: now,
			UpdatedAt: now,
		}

		created, err := l.store.Create(ctx, entry)
		if errors.Is(err, ErrExists) {
			l.logger.Debug().Str("ledger_id", id).Msg("Ledger id collision, retrying")
			continue
		}
		if err != nil {
			return Entry{}, err
		}

		observability.RecordLedgerOpened(string(created.Lane))
		l.logger.Info().
			Str("ledger_id", created.ID).
			Str("tenant_id", created.TenantID).
			Str("status", string(created.Status)).
			Msg("Ledger entry opened")
		l.publish(ctx, created, "")
		return created, nil
	}
	return Entry{}, fmt.Errorf("failed to allocate a unique ledger id after %d attempts", maxOpenAttempts)
}

// Get returns the entry with id.
func (l *Ledger) Get(ctx context.Context, id string) (Entry, error) {
	return l.store.Get(ctx, id)
}

// Update merges patch into the entry and records the transition, if any.
func (l *Ledger) Update(ctx context.Context, id string, patch Patch) (Entry, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}

	now := l.now().UTC()
	updated, err := l.store.Update(ctx, id, patch, now)
	if err != nil {
		return Entry{}, err
	}

	var from Status
	if patch.Status != nil && len(updated.History) > 0 {
		last := updated.History[len(updated.History)-1]
		if last.To == *patch.Status && last.At.Equal(now) {
			from = last.From
			observability.RecordLedgerTransition(string(updated.Lane), string(updated.Status))
			observability.RecordLedgerAudit(ctx, updated.ID, updated.TenantID, string(from), string(updated.Status))
			l.logger.Info().
				Str("ledger_id", updated.ID).
				Str("from", string(from)).
				Str("to", string(updated.Status)).
				Msg("Ledger entry transitioned")
		}
	}

	l.publish(ctx, updated, from)
	return updated, nil
}

// Advance moves the entry to status without touching other fields. It is the
// entry point for external actors reporting sent/closed. An entry holding
// withheld actions only leaves its status through approval.
func (l *Ledger) Advance(ctx context.Context, id string, status Status) (Entry, error) {
	return l.Update(ctx, id, Patch{
		Status: &status,
		Precondition: func(e Entry) error {
			if e.HasPending() && e.Status != status {
				return fmt.Errorf("%w: %s -> %s while %d action(s) await approval",
					ErrInvalidTransition, e.Status, status, len(e.Pending))
			}
			return nil
		},
	})
}

// URL returns the public link for an entry, or "" when no base URL is set.
func (l *Ledger) URL(id string) string {
	if l.baseURL == "" || id == "" {
		return ""
	}
	return l.baseURL + "/" + id
}

// Close releases the publisher and the store.
func (l *Ledger) Close() error {
	var errs []error
	if l.publisher != nil {
		if err := l.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *Ledger) publish(ctx context.Context, entry Entry, from Status) {
	if l.publisher == nil {
		return
	}
	event := TransitionEvent{
		EntryID:  entry.ID,
		TenantID: entry.TenantID,
		Lane:     entry.Lane,
		From:     from,
		To:       entry.Status,
		Title:    entry.Title,
		At:       entry.UpdatedAt,
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn().Err(err).Str("ledger_id", entry.ID).Msg("Failed to publish ledger event")
	}
}
