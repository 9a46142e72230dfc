package server

import (
	"sync"
	"time"
)

// RateLimit bounds agent runs per tenant. Zero values disable a limit.
type RateLimit struct {
	RequestsPerMinute int
	MaxConcurrent     int
}

// tenantLimiter implements a sliding one-minute window plus a concurrency cap.
type tenantLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
}

// acquire records a request start when allowed. The returned func ends it.
func (r *tenantLimiter) acquire(now time.Time) (func(), string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConcurrent > 0 && r.concurrentRequests >= r.maxConcurrent {
		return nil, "too many concurrent requests"
	}

	cutoff := now.Add(-time.Minute)
	valid := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.requests = valid

	if r.requestsPerMinute > 0 && len(r.requests) >= r.requestsPerMinute {
		return nil, "rate limit exceeded"
	}

	r.requests = append(r.requests, now)
	r.concurrentRequests++

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.concurrentRequests > 0 {
				r.concurrentRequests--
			}
		})
	}, ""
}

// limiterSet keeps one limiter per tenant key.
type limiterSet struct {
	mu       sync.Mutex
	limit    RateLimit
	limiters map[string]*tenantLimiter
	now      func() time.Time
}

func newLimiterSet(limit RateLimit) *limiterSet {
	return &limiterSet{
		limit:    limit,
		limiters: make(map[string]*tenantLimiter),
		now:      time.Now,
	}
}

func (s *limiterSet) enabled() bool {
	return s.limit.RequestsPerMinute > 0 || s.limit.MaxConcurrent > 0
}

func (s *limiterSet) acquire(key string) (func(), string) {
	s.mu.Lock()
	l, ok := s.limiters[key]
	if !ok {
		l = &tenantLimiter{
			requestsPerMinute: s.limit.RequestsPerMinute,
			maxConcurrent:     s.limit.MaxConcurrent,
		}
		s.limiters[key] = l
	}
	s.mu.Unlock()
	return l.acquire(s.now())
}
