package capture

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/subtrack/nativebridge/internal/bridge"
	"github.com/subtrack/nativebridge/internal/logger"
	"github.com/subtrack/nativebridge/internal/metrics"
)

// Control channel methods.
const (
	MethodCheckPermission           = "checkPermission"
	MethodRequestPermissionSettings = "requestPermissionSettings"
	MethodOpenSettings              = "openSettings"
)

// Options configures a Service.
type Options struct {
	// AppID is looked up in the enabled-listener registry.
	AppID    string
	Registry Registry
	Settings SettingsOpener
	// EmitRemovals delivers removed notifications to the subscriber.
	// When false removals are only logged.
	EmitRemovals bool
	Metrics      *metrics.Metrics
}

// Service observes notifications posted by the host and forwards them to at
// most one stream subscriber.
//
// The subscriber slot is last-writer-wins: a new listen replaces the current
// sink and ends the replaced stream. Delivery happens while holding the slot
// lock, so no event reaches a sink after its cancellation returns.
type Service struct {
	provider ContextProvider
	opts     Options
	logger   *logger.Logger

	mu      sync.Mutex
	state   State
	execCtx ExecutionContext
	sink    bridge.EventSink
}

// NewService creates an uninitialized service. provider is consulted on every
// activation.
func NewService(provider ContextProvider, opts Options, log *logger.Logger) *Service {
	if opts.Registry == nil {
		opts.Registry = StaticRegistry("")
	}
	if opts.Settings == nil {
		opts.Settings = LogOpener{Logger: log}
	}
	return &Service{
		provider: provider,
		opts:     opts,
		logger:   log.WithComponent("capture"),
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnCreate activates the service inside the current execution context.
// If no context exists the service stays non-functional and
// ErrContextUnavailable is returned. Activating an active service is a no-op.
func (s *Service) OnCreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.active() {
		return nil
	}

	var execCtx ExecutionContext
	if s.provider != nil {
		execCtx = s.provider()
	}
	if execCtx == nil {
		s.logger.Error("background execution context unavailable, notification capture disabled")
		return ErrContextUnavailable
	}

	if err := execCtx.Attach(Handlers{Control: s.HandleMethodCall, Stream: s}); err != nil {
		s.logger.Error("failed to attach to execution context", slog.String("error", err.Error()))
		return err
	}

	s.execCtx = execCtx
	s.state = StateReady
	s.logger.Info("notification capture ready")
	return nil
}

// OnDestroy detaches from the execution context and ends the active stream.
func (s *Service) OnDestroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink != nil {
		s.sink.EndOfStream()
		s.sink = nil
	}
	if s.execCtx != nil {
		s.execCtx.Detach()
		s.execCtx = nil
	}
	if s.state != StateUninitialized {
		s.state = StateTornDown
	}
	s.logger.Info("notification capture torn down")
}

// OnListen installs sink as the only subscriber, ending any previous stream.
func (s *Service) OnListen(_ json.RawMessage, sink bridge.EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		s.logger.Warn("listen while capture inactive", slog.String("state", s.state.String()))
		sink.EndOfStream()
		return
	}

	if s.sink != nil && s.sink != sink {
		s.logger.Debug("replacing stream subscriber")
		s.opts.Metrics.SubscriptionReplaced()
		s.sink.EndOfStream()
	}
	s.sink = sink
	s.state = StateObserving
}

// OnCancel clears the subscriber slot if sink is still the current subscriber.
// Cancellations of already replaced sinks are ignored.
func (s *Service) OnCancel(_ json.RawMessage, sink bridge.EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil || s.sink != sink {
		return
	}
	s.sink = nil
	if s.state == StateObserving {
		s.state = StateIdle
	}
}

// OnNotificationPosted forwards a posted notification to the subscriber.
// A nil notification is ignored.
func (s *Service) OnNotificationPosted(n *StatusNotification) {
	if n == nil {
		return
	}
	s.logger.Debug("notification posted",
		slog.String("package", n.PackageName),
		slog.String("key", n.Key))
	s.opts.Metrics.ObserveNotification(string(KindPosted))
	s.deliver(NewNotificationEvent(KindPosted, n))
}

// OnNotificationRemoved logs a removal and forwards it only when removals
// are enabled.
func (s *Service) OnNotificationRemoved(n *StatusNotification) {
	if n == nil {
		return
	}
	s.logger.Debug("notification removed",
		slog.String("package", n.PackageName),
		slog.String("key", n.Key))
	s.opts.Metrics.ObserveNotification(string(KindRemoved))
	if !s.opts.EmitRemovals {
		return
	}
	s.deliver(NewNotificationEvent(KindRemoved, n))
}

func (s *Service) deliver(event NotificationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		return
	}
	if s.sink == nil {
		s.opts.Metrics.NotificationDropped()
		return
	}
	s.sink.Success(event)
	s.opts.Metrics.NotificationDelivered()
}

// CheckPermission reports whether the app is in the enabled-listener registry.
// Registry read failures count as not granted.
func (s *Service) CheckPermission(ctx context.Context) bool {
	registry, err := s.opts.Registry.EnabledListeners(ctx)
	if err != nil {
		s.logger.LogError(ctx, err, "failed to read enabled listeners")
		return false
	}
	return ContainsListener(registry, s.opts.AppID)
}

// RequestPermissionSettings asks the host to show the listener settings surface.
func (s *Service) RequestPermissionSettings(ctx context.Context) error {
	return s.opts.Settings.OpenListenerSettings(ctx)
}

// HandleMethodCall serves the control channel.
func (s *Service) HandleMethodCall(ctx context.Context, call bridge.MethodCall, result bridge.Result) {
	switch call.Method {
	case MethodCheckPermission:
		result.Success(s.CheckPermission(ctx))
	case MethodRequestPermissionSettings, MethodOpenSettings:
		if err := s.RequestPermissionSettings(ctx); err != nil {
			s.logger.LogError(ctx, err, "failed to open listener settings")
			result.Error(bridge.CodeSettingsUnavailable, "could not open listener settings", err.Error())
			return
		}
		result.Success(nil)
	default:
		result.NotImplemented()
	}
}
