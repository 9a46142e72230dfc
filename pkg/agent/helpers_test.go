package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harun/quill/pkg/adapters"
	"github.com/harun/quill/pkg/ledger"
	"github.com/harun/quill/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	fallback  *LLMResponse
	err       error
	requests  []LLMRequest
}

func (p *fakeProvider) Provider() string { return "fake" }

func (p *fakeProvider) Call(ctx context.Context, req LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) > 0 {
		resp := p.responses[0]
		p.responses = p.responses[1:]
		return resp, nil
	}
	if p.fallback != nil {
		return p.fallback, nil
	}
	return &LLMResponse{}, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func textResponse(s string) *LLMResponse {
	return &LLMResponse{Content: s}
}

type countingArchive struct {
	mu      sync.Mutex
	creates int
	updates int
	err     error
}

func (a *countingArchive) CreateRecord(ctx context.Context, parentID string, fields map[string]interface{}) (adapters.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creates++
	if a.err != nil {
		return adapters.Record{}, a.err
	}
	return adapters.Record{ID: "page_1", URL: "https://archive.test/page_1"}, nil
}

func (a *countingArchive) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) (adapters.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates++
	return adapters.Record{ID: recordID}, nil
}

func (a *countingArchive) Creates() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.creates
}

type countingScheduler struct {
	mu    sync.Mutex
	calls int
}

func (s *countingScheduler) ScheduleSend(ctx context.Context, req adapters.SendRequest) (adapters.Scheduled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return adapters.Scheduled{ID: "post_1", Status: "scheduled", URL: "https://mail.test/post_1", SendAt: req.SendAt}, nil
}

func (s *countingScheduler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// slowSearch blocks until the call is cancelled.
type slowSearch struct {
	mu    sync.Mutex
	calls int
}

func (s *slowSearch) SearchAsset(ctx context.Context, query string) (adapters.Asset, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return adapters.Asset{}, ctx.Err()
}

type countingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *countingNotifier) PostMessage(ctx context.Context, channel, text string) (adapters.Posted, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	if n.err != nil {
		return adapters.Posted{}, n.err
	}
	return adapters.Posted{ID: "1.0", Status: "sent", Channel: channel}, nil
}

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type harness struct {
	provider  *fakeProvider
	archive   *countingArchive
	scheduler *countingScheduler
	search    *slowSearch
	notifier  *countingNotifier
	executor  *toolexecutor.Executor
	store     *ledger.MemoryStore
	backend   ledger.Store
	ledger    *ledger.Ledger
	tenants   *StaticTenants
	orch      *Orchestrator
	approver  *Approver
}

type harnessConfig struct {
	noScheduler bool
	runTimeout  time.Duration
	wrapStore   func(*ledger.MemoryStore) ledger.Store
}

type harnessOption func(*harnessConfig)

// withoutScheduler leaves the email adapter unconfigured.
func withoutScheduler() harnessOption {
	return func(c *harnessConfig) { c.noScheduler = true }
}

func withRunTimeout(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.runTimeout = d }
}

func withStore(wrap func(*ledger.MemoryStore) ledger.Store) harnessOption {
	return func(c *harnessConfig) { c.wrapStore = wrap }
}

func newHarness(t *testing.T, provider *fakeProvider, opts ...harnessOption) *harness {
	t.Helper()

	var cfg harnessConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		provider:  provider,
		archive:   &countingArchive{},
		scheduler: &countingScheduler{},
		search:    &slowSearch{},
		notifier:  &countingNotifier{},
		store:     ledger.NewMemoryStore(),
	}

	logger := zerolog.Nop()
	h.executor = toolexecutor.New(toolexecutor.Options{
		Timeout: 50 * time.Millisecond,
		Allowed: toolexecutor.AllowList,
		Logger:  &logger,
	})
	adapterSet := toolexecutor.Adapters{
		Archive:  h.archive,
		Search:   h.search,
		Notifier: h.notifier,
	}
	if !cfg.noScheduler {
		adapterSet.Scheduler = h.scheduler
	}
	require.NoError(t, toolexecutor.RegisterMarketingTools(h.executor, adapterSet))

	h.backend = h.store
	if cfg.wrapStore != nil {
		h.backend = cfg.wrapStore(h.store)
	}
	h.ledger = ledger.New(h.backend, ledger.Options{PublicBaseURL: "https://ops.test/ledger", Logger: logger})
	h.tenants = NewStaticTenants(map[string]ClientConfig{
		"acme": {
			ArchiveParentID:     "db_acme",
			NotificationChannel: "#acme-marketing",
			SendSchedule:        "0 9 * * 4",
			Timezone:            "UTC",
		},
		"broken": {NotificationChannel: "#broken"},
	}, "acme")

	orch, err := NewOrchestrator(Config{
		Provider: provider,
		Executor: h.executor,
		Ledger:   h.ledger,
		Tenants:  h.tenants,
		Model:      "test-model",
		RunTimeout: cfg.runTimeout,
		Logger:     logger,
	})
	require.NoError(t, err)
	h.orch = orch

	approver, err := NewApprover(ApproverConfig{
		Executor: h.executor,
		Ledger:   h.ledger,
		Tenants:  h.tenants,
		Logger:   logger,
	})
	require.NoError(t, err)
	h.approver = approver

	return h
}

var errArchiveDown = errors.New("archive unavailable")

// deadlineStore fails every call made on a finished context, like a real
// database driver does.
type deadlineStore struct {
	*ledger.MemoryStore
}

func (s deadlineStore) Create(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	return s.MemoryStore.Create(ctx, entry)
}

func (s deadlineStore) Get(ctx context.Context, id string) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s deadlineStore) Update(ctx context.Context, id string, patch ledger.Patch, now time.Time) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	return s.MemoryStore.Update(ctx, id, patch, now)
}

// flakyStore fails unconditional updates while failing is set. Conditional
// claims always go through.
type flakyStore struct {
	*ledger.MemoryStore
	mu      sync.Mutex
	failing bool
}

func (s *flakyStore) Fail(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = on
}

func (s *flakyStore) Update(ctx context.Context, id string, patch ledger.Patch, now time.Time) (ledger.Entry, error) {
	s.mu.Lock()
	fail := s.failing && patch.Precondition == nil
	s.mu.Unlock()
	if fail {
		return ledger.Entry{}, errors.New("ledger store unavailable")
	}
	return s.MemoryStore.Update(ctx, id, patch, now)
}
