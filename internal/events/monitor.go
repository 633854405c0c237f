package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink states reported by Monitor.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health is the last observed state of the event sink.
type Health struct {
	Status           string    `json:"status"`
	LastCheck        time.Time `json:"last_check"`
	LastHealthy      time.Time `json:"last_healthy"`
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// Monitor periodically checks that the event sink is reachable. Publishing
// is best effort, so the monitor only reports: it logs state changes and
// runs an optional callback when the sink turns unhealthy.
//
// Thread-safe: all methods may be called concurrently with Run.
type Monitor struct {
	check       func(context.Context) error
	onUnhealthy func()
	logger      *slog.Logger
	interval    time.Duration
	timeout     time.Duration
	maxFailures int

	mu     sync.RWMutex
	health Health
}

// NewMonitor returns a monitor that calls check every interval. The sink is
// marked unhealthy after 3 consecutive failures.
//
// Example:
//
//	monitor := events.NewMonitor(func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	}, 10*time.Second, logger)
//	go monitor.Run(ctx)
func NewMonitor(check func(context.Context) error, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		check:       check,
		logger:      logger,
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		health:      Health{Status: StatusUnknown},
	}
}

// SetOnUnhealthy sets the callback run each time the sink goes from
// healthy or unknown to unhealthy. Call it before Run.
func (m *Monitor) SetOnUnhealthy(callback func()) {
	m.onUnhealthy = callback
}

// Run checks the sink immediately and then every interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.checkOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) checkOnce(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.check(checkCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.health.LastCheck = time.Now()
	if err != nil {
		m.health.ConsecutiveFails++
		m.logger.Debug("event sink check failed",
			"attempt", m.health.ConsecutiveFails,
			"max", m.maxFailures,
			"error", err,
		)
		if m.health.ConsecutiveFails >= m.maxFailures && m.health.Status != StatusUnhealthy {
			m.health.Status = StatusUnhealthy
			m.logger.Warn("event sink unhealthy", "failures", m.health.ConsecutiveFails, "error", err)
			if m.onUnhealthy != nil {
				// Run without holding the lock.
				go m.onUnhealthy()
			}
		}
		return
	}

	if m.health.Status == StatusUnhealthy {
		m.logger.Info("event sink recovered")
	}
	m.health.Status = StatusHealthy
	m.health.ConsecutiveFails = 0
	m.health.LastHealthy = m.health.LastCheck
}

// Health returns a copy of the current state.
func (m *Monitor) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// Healthy reports whether the last check succeeded.
func (m *Monitor) Healthy() bool {
	return m.Health().Status == StatusHealthy
}
