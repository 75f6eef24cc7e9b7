package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limit throttles one handler type on this node.
type Limit struct {
	// HandlerType is the job handler type the limit applies to.
	HandlerType string

	// MaxConcurrency caps simultaneously running jobs. Zero means no cap.
	MaxConcurrency int

	// RateLimit is the sustained number of job starts per second. Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

// TenantLimit throttles one tenant, optionally for a single handler type.
type TenantLimit struct {
	// TenantID matches job.TenantID.
	TenantID string

	// HandlerType restricts the limit to one handler type. Empty means
	// all handler types of the tenant.
	HandlerType string

	MaxConcurrency int
	RateLimit      float64
	RateBurst      int
}

// gate is the runtime state of one limit.
type gate struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

func newGate(maxConcurrency int, rateLimit float64, burst int) *gate {
	g := &gate{maxConcurrency: maxConcurrency}
	if rateLimit > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rateLimit), burst)
	}
	return g
}

// full reports whether the concurrency cap is reached.
func (g *gate) full() bool {
	return g.maxConcurrency > 0 && g.active >= g.maxConcurrency
}

// Manager enforces handler and tenant limits. It is safe for concurrent
// use.
type Manager struct {
	mu       sync.Mutex
	handlers map[string]*gate
	tenants  map[tenantKey]*gate
}

type tenantKey struct {
	tenantID    string
	handlerType string
}

// NewManager creates a Manager with the given handler limits.
func NewManager(limits ...Limit) *Manager {
	m := &Manager{
		handlers: make(map[string]*gate, len(limits)),
		tenants:  make(map[tenantKey]*gate),
	}
	for _, l := range limits {
		m.handlers[l.HandlerType] = newGate(l.MaxConcurrency, l.RateLimit, l.RateBurst)
	}
	return m
}

// SetLimit adds or replaces a handler limit, keeping the active count.
func (m *Manager) SetLimit(l Limit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := newGate(l.MaxConcurrency, l.RateLimit, l.RateBurst)
	if existing := m.handlers[l.HandlerType]; existing != nil {
		g.active = existing.active
	}
	m.handlers[l.HandlerType] = g
}

// SetTenantLimit adds or replaces a tenant limit, keeping the active count.
func (m *Manager) SetTenantLimit(l TenantLimit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey{l.TenantID, l.HandlerType}
	g := newGate(l.MaxConcurrency, l.RateLimit, l.RateBurst)
	if existing := m.tenants[key]; existing != nil {
		g.active = existing.active
	}
	m.tenants[key] = g
}

// gates returns every gate applying to a job, most specific last.
func (m *Manager) gates(handlerType, tenantID string) []*gate {
	var gs []*gate
	if g := m.handlers[handlerType]; g != nil {
		gs = append(gs, g)
	}
	if tenantID != "" {
		if g := m.tenants[tenantKey{tenantID, ""}]; g != nil {
			gs = append(gs, g)
		}
		if g := m.tenants[tenantKey{tenantID, handlerType}]; g != nil && handlerType != "" {
			gs = append(gs, g)
		}
	}
	return gs
}

// Acquire reserves a slot for a job of handlerType owned by tenantID. It
// returns false when any applicable limit denies it. The caller must call
// Release after the job ran.
func (m *Manager) Acquire(handlerType, tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	gs := m.gates(handlerType, tenantID)
	for _, g := range gs {
		if g.full() {
			return false
		}
	}
	for _, g := range gs {
		if g.limiter != nil && !g.limiter.Allow() {
			return false
		}
	}
	for _, g := range gs {
		g.active++
	}
	return true
}

// Release returns the slot taken by Acquire.
func (m *Manager) Release(handlerType, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.gates(handlerType, tenantID) {
		if g.active > 0 {
			g.active--
		}
	}
}

// ActiveCount returns the number of running jobs of a handler type.
func (m *Manager) ActiveCount(handlerType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.handlers[handlerType]; g != nil {
		return g.active
	}
	return 0
}

// TenantActiveCount returns the number of running jobs counted against a
// tenant limit. An empty handlerType selects the tenant-wide limit.
func (m *Manager) TenantActiveCount(tenantID, handlerType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.tenants[tenantKey{tenantID, handlerType}]; g != nil {
		return g.active
	}
	return 0
}
