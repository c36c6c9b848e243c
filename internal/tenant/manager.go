package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chalkboard-sms/chalkboard/internal/observability"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultProbeTimeout = 2 * time.Second
)

// ManagerConfig tunes the connection manager.
type ManagerConfig struct {
	DialTimeout  time.Duration
	ProbeTimeout time.Duration
}

// Manager owns the cache of per-tenant store handles. It is the only
// component permitted to create tenant connection resources.
type Manager struct {
	dialer  Dialer
	logger  *slog.Logger
	metrics *observability.TenantCacheMetrics

	dialTimeout  time.Duration
	probeTimeout time.Duration

	mu      sync.RWMutex
	handles map[string]*Handle

	group singleflight.Group
}

// NewManager constructs a Manager.
func NewManager(dialer Dialer, logger *slog.Logger, metrics *observability.TenantCacheMetrics, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &Manager{
		dialer:       dialer,
		logger:       logger,
		metrics:      metrics,
		dialTimeout:  cfg.DialTimeout,
		probeTimeout: cfg.ProbeTimeout,
		handles:      make(map[string]*Handle),
	}
}

// Handle returns the live handle for a canonical school code, dialing and
// caching it on first use. Concurrent callers for the same uninitialized
// tenant share a single dial; contention on one code never blocks another.
func (m *Manager) Handle(ctx context.Context, code string) (*Handle, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, shared.ErrSchoolNotFound
	}

	m.mu.RLock()
	handle := m.handles[code]
	m.mu.RUnlock()

	if handle != nil {
		if err := m.probe(ctx, handle); err == nil {
			m.metrics.Hit()
			return handle, nil
		}
		m.logger.Warn("tenant: liveness probe failed, evicting",
			slog.String("code", code))
		m.metrics.ProbeFailure()
		m.evict(code, handle)
	} else {
		m.metrics.Miss()
	}

	return m.connect(ctx, code)
}

// Evict drops a cached handle and closes its connection resource. Used when
// a school is deactivated; safe to call for codes that are not cached.
func (m *Manager) Evict(code string) {
	code = strings.ToUpper(strings.TrimSpace(code))
	m.mu.Lock()
	handle := m.handles[code]
	delete(m.handles, code)
	m.mu.Unlock()
	if handle != nil {
		m.metrics.Eviction()
		handle.db.Close()
	}
}

// Close releases every cached connection. The manager must not be used
// afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[string]*Handle)
	m.mu.Unlock()
	for _, handle := range handles {
		handle.db.Close()
	}
}

// Cached reports whether a handle for the code is currently cached.
func (m *Manager) Cached(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.handles[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

func (m *Manager) connect(ctx context.Context, code string) (*Handle, error) {
	resultChan := m.group.DoChan(code, func() (any, error) {
		// A concurrent flight may have populated the cache already.
		m.mu.RLock()
		cached := m.handles[code]
		m.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		store, err := m.dialWithRetry(code)
		if err != nil {
			return nil, err
		}
		handle := &Handle{code: code, db: store}
		m.mu.Lock()
		m.handles[code] = handle
		m.mu.Unlock()
		m.metrics.Dial()
		m.logger.Info("tenant: connected", slog.String("code", code))
		return handle, nil
	})

	select {
	case <-ctx.Done():
		// The flight keeps running on its own bounded deadline; this caller
		// gives up without wedging the per-key guard.
		return nil, fmt.Errorf("tenant: connect %s: %s: %w", code, ctx.Err(), shared.ErrTenantUnreachable)
	case result := <-resultChan:
		if result.Err != nil {
			m.group.Forget(code)
			return nil, result.Err
		}
		return result.Val.(*Handle), nil
	}
}

// dialWithRetry performs the connection setup with one bounded retry. Each
// attempt carries its own deadline so a stuck dial cannot block waiters
// indefinitely.
func (m *Manager) dialWithRetry(code string) (DB, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
		store, err := m.dialer.Dial(ctx, code)
		cancel()
		if err == nil {
			return store, nil
		}
		lastErr = err
		m.logger.Warn("tenant: dial failed",
			slog.String("code", code),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	return nil, fmt.Errorf("tenant: dial %s: %s: %w", code, lastErr, shared.ErrTenantUnreachable)
}

func (m *Manager) probe(ctx context.Context, handle *Handle) error {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	return handle.db.Ping(ctx)
}

func (m *Manager) evict(code string, handle *Handle) {
	m.mu.Lock()
	if m.handles[code] == handle {
		delete(m.handles, code)
	}
	m.mu.Unlock()
	handle.db.Close()
}
