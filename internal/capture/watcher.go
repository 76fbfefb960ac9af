package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/subtrack/nativebridge/internal/logger"
	"github.com/subtrack/nativebridge/internal/metrics"
)

// PermissionWatcher polls the listener permission on a cron schedule and
// logs when it is granted or revoked.
type PermissionWatcher struct {
	service  *Service
	metrics  *metrics.Metrics
	logger   *logger.Logger
	schedule string

	mu      sync.Mutex
	checked bool
	granted bool
}

func NewPermissionWatcher(service *Service, schedule string, m *metrics.Metrics, log *logger.Logger) (*PermissionWatcher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid permission watch schedule %q: %w", schedule, err)
	}
	return &PermissionWatcher{
		service:  service,
		metrics:  m,
		logger:   log.WithComponent("permission-watcher"),
		schedule: schedule,
	}, nil
}

// Run checks the permission once, then on every tick until ctx is done.
func (w *PermissionWatcher) Run(ctx context.Context) {
	w.logger.Info("starting permission watcher", "schedule", w.schedule)

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.Check(ctx) }); err != nil {
		w.logger.Error("failed to schedule permission check", "error", err.Error())
		return
	}

	// Run immediately on startup
	w.Check(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info("permission watcher stopped")
}

// Check reads the permission and reports whether it is granted.
func (w *PermissionWatcher) Check(ctx context.Context) bool {
	granted := w.service.CheckPermission(ctx)
	w.metrics.SetPermission(granted)

	w.mu.Lock()
	changed := !w.checked || w.granted != granted
	w.checked = true
	w.granted = granted
	w.mu.Unlock()

	if changed {
		if granted {
			w.logger.Info("notification listener permission granted")
		} else {
			w.logger.Warn("notification listener permission not granted")
		}
	}
	return granted
}
