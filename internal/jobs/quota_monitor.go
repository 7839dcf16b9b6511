// quota_monitor.go implements the QuotaMonitor background job, which periodically counts the
// API keys that reject analyses because their enabled monthly limit has been reached and
// publishes the number as the dandi_api_keys_quota_exceeded gauge. Usage is never reset
// here; the job only reports.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dandi-dev/dandi/internal/telemetry"
)

// DefaultQuotaMonitorInterval is used when no positive interval is configured.
const DefaultQuotaMonitorInterval = 5 * time.Minute

// QuotaCounter counts keys whose quota is exhausted.
type QuotaCounter interface {
	CountQuotaExceeded(ctx context.Context) (int64, error)
}

// QuotaMonitor periodically samples the number of exhausted keys.
type QuotaMonitor struct {
	keys     QuotaCounter
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewQuotaMonitor creates a QuotaMonitor. A non-positive interval defaults to
// DefaultQuotaMonitorInterval.
func NewQuotaMonitor(keys QuotaCounter, interval time.Duration) *QuotaMonitor {
	if interval <= 0 {
		interval = DefaultQuotaMonitorInterval
	}
	return &QuotaMonitor{
		keys:     keys,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start runs an initial sample immediately, then repeats on the configured interval.
// It blocks until ctx is cancelled or Stop is called.
func (m *QuotaMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("quota monitor started", "interval", m.interval)

	m.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			m.runCheck(ctx)
		case <-m.stopChan:
			slog.Info("quota monitor stopped")
			return
		case <-ctx.Done():
			slog.Info("quota monitor context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit. It is safe to call more than once.
func (m *QuotaMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// runCheck samples the store once. On failure the gauge keeps its previous value.
func (m *QuotaMonitor) runCheck(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	n, err := m.keys.CountQuotaExceeded(checkCtx)
	if err != nil {
		slog.Error("quota monitor: failed to count exhausted api keys", "error", err)
		return
	}

	telemetry.APIKeysQuotaExceeded.Set(float64(n))
	if n > 0 {
		slog.Info("quota monitor: api keys at their monthly limit", "count", n)
	}
}
