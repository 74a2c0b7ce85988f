// Package pool implements the session pool (C4): a fixed-size slice of
// authoritative-store sessions with a parallel in-use bitmap guarded by
// one mutex, blocking scan-then-sleep acquisition, and a per-slot
// circuit breaker for reconnect-on-fatal.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/obserrors"
)

// acquireQuantum is the sleep between failed scan attempts, per
// spec.md §4.4's "~1s" quantum.
const acquireQuantum = time.Second

// Session is one authoritative-store connection handle. Implementations
// live in internal/authstore; pool only manages their lifecycle.
type Session interface {
	// Reconnect tears down and re-establishes the underlying connection.
	Reconnect(ctx context.Context) error
	// Close releases any OS-level resources held by the session.
	Close() error
}

// Factory constructs a new Session for slot index idx.
type Factory func(ctx context.Context, idx int) (Session, error)

// slot pairs one session with its own circuit breaker, so a fatal error
// on one session does not trip the breaker for sessions that are fine.
type slot struct {
	session Session
	breaker *gobreaker.CircuitBreaker
	inUse   bool
}

// Pool is the fixed-size session pool.
type Pool struct {
	mu      sync.Mutex
	slots   []slot
	timeout time.Duration
	logger  *zap.Logger

	degraded bool // true if one or more slots failed to initialize

	shuttingDown chan struct{}
	shutdownOnce sync.Once
}

// New constructs a pool of size n sessions using factory, each wrapped
// in its own circuit breaker. A per-slot initialization failure does not
// fail the whole pool: it is logged, the slot is left empty (never
// handed out), and the pool is marked degraded. If every slot fails,
// New returns obserrors.ErrPoolInitFailed.
func New(ctx context.Context, n int, timeout time.Duration, factory Factory, logger *zap.Logger) (*Pool, error) {
	p := &Pool{
		slots:        make([]slot, n),
		timeout:      timeout,
		logger:       logger,
		shuttingDown: make(chan struct{}),
	}

	initialized := 0
	for i := 0; i < n; i++ {
		sess, err := factory(ctx, i)
		if err != nil {
			logger.Warn("session pool slot failed to initialize",
				zap.Int("slot", i), zap.Error(err))
			p.degraded = true
			continue
		}
		p.slots[i] = slot{
			session: sess,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        fmt.Sprintf("authstore-session-%d", i),
				MaxRequests: 1,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Warn("session breaker state changed",
						zap.String("name", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			}),
		}
		initialized++
	}

	if initialized == 0 && n > 0 {
		return nil, fmt.Errorf("pool: all %d slots failed to initialize: %w", n, obserrors.ErrPoolInitFailed)
	}
	return p, nil
}

// Degraded reports whether the pool started with fewer than its
// configured number of sessions.
func (p *Pool) Degraded() bool {
	return p.degraded
}

// Handle is a leased session; callers must call Release exactly once.
type Handle struct {
	pool    *Pool
	index   int
	Session Session
}

// Release returns the slot to the pool.
func (h *Handle) Release() {
	h.pool.mu.Lock()
	h.pool.slots[h.index].inUse = false
	h.pool.mu.Unlock()
}

// Acquire scans for a free, initialized slot; if none is free it sleeps
// one quantum and retries, up to the pool's configured timeout. It fails
// with obserrors.ErrNoConnectionAvailable if the timeout elapses, and
// with obserrors.ErrShuttingDown if the pool is draining.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	deadline := time.Now().Add(p.timeout)

	for {
		select {
		case <-p.shuttingDown:
			return nil, obserrors.ErrShuttingDown
		default:
		}

		p.mu.Lock()
		for i := range p.slots {
			if p.slots[i].session == nil || p.slots[i].inUse {
				continue
			}
			p.slots[i].inUse = true
			p.mu.Unlock()
			return &Handle{pool: p, index: i, Session: p.slots[i].session}, nil
		}
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("pool: no session available after %s: %w", p.timeout, obserrors.ErrNoConnectionAvailable)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.shuttingDown:
			return nil, obserrors.ErrShuttingDown
		case <-time.After(acquireQuantum):
		}
	}
}

// WithBreaker runs op through the circuit breaker guarding the slot h
// was acquired from, so repeated fatal failures on this particular
// session trip its breaker independent of the others.
func (p *Pool) WithBreaker(h *Handle, op func() (any, error)) (any, error) {
	p.mu.Lock()
	breaker := p.slots[h.index].breaker
	p.mu.Unlock()
	return breaker.Execute(op)
}

// Reconnect is called by the authoritative-store client's fatal-error
// policy: tear down and rebuild the session at h's slot, still under
// lease to h.
func (p *Pool) Reconnect(ctx context.Context, h *Handle) error {
	if err := h.Session.Reconnect(ctx); err != nil {
		return fmt.Errorf("pool: reconnect slot %d: %w", h.index, err)
	}
	return nil
}

// Shutdown signals Acquire to stop handing out new sessions and closes
// every initialized slot.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shuttingDown)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if p.slots[i].session != nil {
			if err := p.slots[i].session.Close(); err != nil {
				p.logger.Warn("error closing session", zap.Int("slot", i), zap.Error(err))
			}
		}
	}
}
