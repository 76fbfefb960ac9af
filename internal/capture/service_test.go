package capture

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/subtrack/nativebridge/internal/bridge"
	"github.com/subtrack/nativebridge/internal/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []NotificationEvent
	ended  int
}

func (s *recordingSink) Success(event interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event.(NotificationEvent))
}

func (s *recordingSink) Error(string, string, interface{}) {}

func (s *recordingSink) EndOfStream() {
	s.mu.Lock()
	s.ended++
	s.mu.Unlock()
}

func (s *recordingSink) received() []NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotificationEvent(nil), s.events...)
}

type fakeContext struct {
	handlers  Handlers
	attachErr error
	detached  bool
}

func (f *fakeContext) Attach(h Handlers) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.handlers = h
	return nil
}

func (f *fakeContext) Detach() { f.detached = true }

func newActiveService(t *testing.T, opts Options) (*Service, *fakeContext) {
	t.Helper()
	fc := &fakeContext{}
	svc := NewService(func() ExecutionContext { return fc }, opts, logger.Nop())
	if err := svc.OnCreate(); err != nil {
		t.Fatalf("OnCreate() error = %v", err)
	}
	return svc, fc
}

func notification(pkg string, extras map[string]interface{}) *StatusNotification {
	return &StatusNotification{PackageName: pkg, Extras: extras}
}

func TestOnCreateWithoutContextStaysInert(t *testing.T) {
	svc := NewService(func() ExecutionContext { return nil }, Options{AppID: "com.example.subtrack"}, logger.Nop())

	if err := svc.OnCreate(); !errors.Is(err, ErrContextUnavailable) {
		t.Fatalf("expected ErrContextUnavailable, got %v", err)
	}
	if svc.State() != StateUninitialized {
		t.Errorf("expected uninitialized, got %s", svc.State())
	}

	sink := &recordingSink{}
	svc.OnListen(nil, sink)
	svc.OnNotificationPosted(notification("com.bank", map[string]interface{}{ExtraTitle: "x"}))
	if len(sink.received()) != 0 {
		t.Error("inert service must not emit events")
	}
}

func TestOnCreateAttachFailure(t *testing.T) {
	want := errors.New("attach failed")
	fc := &fakeContext{attachErr: want}
	svc := NewService(func() ExecutionContext { return fc }, Options{}, logger.Nop())

	if err := svc.OnCreate(); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if svc.State() != StateUninitialized {
		t.Errorf("expected uninitialized, got %s", svc.State())
	}
}

func TestPostedNotificationIsNormalized(t *testing.T) {
	svc, _ := newActiveService(t, Options{})
	sink := &recordingSink{}
	svc.OnListen(nil, sink)

	svc.OnNotificationPosted(notification("com.netflix.mediaclient", map[string]interface{}{
		ExtraTitle: "Payment received",
		ExtraText:  "Your Netflix subscription renewed for $15.49",
	}))

	events := sink.received()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.SourceApplicationID != "com.netflix.mediaclient" || ev.Kind != KindPosted {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Title == nil || *ev.Title != "Payment received" {
		t.Errorf("unexpected title %v", ev.Title)
	}
	if ev.BodyText == nil || *ev.BodyText != "Your Netflix subscription renewed for $15.49" {
		t.Errorf("unexpected text %v", ev.BodyText)
	}
	if ev.ExpandedText != nil {
		t.Errorf("expected absent bigText, got %q", *ev.ExpandedText)
	}
}

func TestNonStringExtrasAreAbsent(t *testing.T) {
	ev := NewNotificationEvent(KindPosted, notification("com.app", map[string]interface{}{
		ExtraTitle:   42,
		ExtraBigText: "long",
	}))
	if ev.Title != nil {
		t.Errorf("expected nil title, got %q", *ev.Title)
	}
	if ev.BodyText != nil {
		t.Errorf("expected nil text, got %q", *ev.BodyText)
	}
	if ev.ExpandedText == nil || *ev.ExpandedText != "long" {
		t.Errorf("unexpected bigText %v", ev.ExpandedText)
	}
}

func TestEventsWithoutSubscriberAreDropped(t *testing.T) {
	svc, _ := newActiveService(t, Options{})

	svc.OnNotificationPosted(notification("com.app", nil))

	sink := &recordingSink{}
	svc.OnListen(nil, sink)
	if len(sink.received()) != 0 {
		t.Error("events posted before listen must not be replayed")
	}
	if svc.State() != StateObserving {
		t.Errorf("expected observing, got %s", svc.State())
	}
}

func TestNewListenReplacesSubscriber(t *testing.T) {
	svc, _ := newActiveService(t, Options{})
	first, second := &recordingSink{}, &recordingSink{}

	svc.OnListen(nil, first)
	svc.OnListen(nil, second)
	svc.OnNotificationPosted(notification("com.app", nil))

	if len(first.received()) != 0 {
		t.Error("replaced subscriber received an event")
	}
	if first.ended != 1 {
		t.Errorf("replaced subscriber should see end of stream once, got %d", first.ended)
	}
	if len(second.received()) != 1 {
		t.Errorf("current subscriber should receive the event, got %d", len(second.received()))
	}

	// A late cancel from the replaced consumer must not detach the current one.
	svc.OnCancel(nil, first)
	svc.OnNotificationPosted(notification("com.app", nil))
	if len(second.received()) != 2 {
		t.Errorf("stale cancel detached the current subscriber")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	svc, _ := newActiveService(t, Options{})
	sink := &recordingSink{}

	svc.OnListen(nil, sink)
	svc.OnCancel(nil, sink)
	svc.OnNotificationPosted(notification("com.app", nil))

	if len(sink.received()) != 0 {
		t.Error("event delivered after cancel")
	}
	if svc.State() != StateIdle {
		t.Errorf("expected idle, got %s", svc.State())
	}

	// Cancelling again is harmless.
	svc.OnCancel(nil, sink)

	svc.OnListen(nil, sink)
	if svc.State() != StateObserving {
		t.Errorf("expected observing after re-listen, got %s", svc.State())
	}
}

func TestRemovalsAreLogOnlyByDefault(t *testing.T) {
	svc, _ := newActiveService(t, Options{})
	sink := &recordingSink{}
	svc.OnListen(nil, sink)

	svc.OnNotificationRemoved(notification("com.app", nil))
	if len(sink.received()) != 0 {
		t.Error("removal delivered while removals are disabled")
	}
}

func TestRemovalsEmittedWhenEnabled(t *testing.T) {
	svc, _ := newActiveService(t, Options{EmitRemovals: true})
	sink := &recordingSink{}
	svc.OnListen(nil, sink)

	svc.OnNotificationRemoved(notification("com.app", nil))
	events := sink.received()
	if len(events) != 1 || events[0].Kind != KindRemoved {
		t.Fatalf("expected one removed event, got %+v", events)
	}
}

func TestNilNotificationIgnored(t *testing.T) {
	svc, _ := newActiveService(t, Options{EmitRemovals: true})
	sink := &recordingSink{}
	svc.OnListen(nil, sink)

	svc.OnNotificationPosted(nil)
	svc.OnNotificationRemoved(nil)
	if len(sink.received()) != 0 {
		t.Error("nil notification produced an event")
	}
}

func TestOnDestroyEndsStreamAndDetaches(t *testing.T) {
	svc, fc := newActiveService(t, Options{})
	sink := &recordingSink{}
	svc.OnListen(nil, sink)

	svc.OnDestroy()

	if !fc.detached {
		t.Error("expected context to be detached")
	}
	if sink.ended != 1 {
		t.Errorf("expected end of stream, got %d", sink.ended)
	}
	if svc.State() != StateTornDown {
		t.Errorf("expected torn down, got %s", svc.State())
	}
	svc.OnNotificationPosted(notification("com.app", nil))
	if len(sink.received()) != 0 {
		t.Error("event delivered after teardown")
	}
}

func TestOrderingPreserved(t *testing.T) {
	svc, _ := newActiveService(t, Options{})
	sink := &recordingSink{}
	svc.OnListen(nil, sink)

	for _, pkg := range []string{"a", "b", "c"} {
		svc.OnNotificationPosted(notification(pkg, nil))
	}

	events := sink.received()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, pkg := range []string{"a", "b", "c"} {
		if events[i].SourceApplicationID != pkg {
			t.Errorf("event %d: expected %s, got %s", i, pkg, events[i].SourceApplicationID)
		}
	}
}

func TestControlChannel(t *testing.T) {
	tests := []struct {
		name       string
		registry   string
		method     string
		wantStatus bridge.ReplyStatus
		wantResult interface{}
	}{
		{"granted", "com.other/.L:com.example.subtrack/.Listener", MethodCheckPermission, bridge.StatusOK, true},
		{"not granted", "com.other/.L", MethodCheckPermission, bridge.StatusOK, false},
		{"empty registry", "", MethodCheckPermission, bridge.StatusOK, false},
		{"open settings", "", MethodRequestPermissionSettings, bridge.StatusOK, nil},
		{"open settings alias", "", MethodOpenSettings, bridge.StatusOK, nil},
		{"unknown", "", "startScan", bridge.StatusNotImplemented, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fc := newActiveService(t, Options{
				AppID:    "com.example.subtrack",
				Registry: StaticRegistry(tt.registry),
			})

			result := bridge.NewCompleter()
			fc.handlers.Control(context.Background(), bridge.MethodCall{Method: tt.method}, result)

			reply, err := result.Wait(context.Background())
			if err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
			if reply.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, reply.Status)
			}
			if reply.Result != tt.wantResult {
				t.Errorf("expected result %v, got %v", tt.wantResult, reply.Result)
			}
		})
	}
}

type failingOpener struct{}

func (failingOpener) OpenListenerSettings(context.Context) error {
	return errors.New("no settings surface")
}

func TestRequestSettingsFailure(t *testing.T) {
	svc, _ := newActiveService(t, Options{Settings: failingOpener{}})

	result := bridge.NewCompleter()
	svc.HandleMethodCall(context.Background(), bridge.MethodCall{Method: MethodRequestPermissionSettings}, result)

	reply, _ := result.Wait(context.Background())
	if reply.Status != bridge.StatusError || reply.Error == nil || reply.Error.Code != bridge.CodeSettingsUnavailable {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestEngineContextRoutesThroughEngine(t *testing.T) {
	var holder bridge.Holder
	engine, _ := holder.GetOrCreate(func() *bridge.Engine { return bridge.NewEngine("background", logger.Nop()) })

	svc := NewService(HolderProvider(&holder, "control", "stream"), Options{
		AppID:    "com.example.subtrack",
		Registry: StaticRegistry("com.example.subtrack/.Listener"),
	}, logger.Nop())
	if err := svc.OnCreate(); err != nil {
		t.Fatalf("OnCreate() error = %v", err)
	}

	reply, err := engine.Invoke(context.Background(), "control", bridge.MethodCall{Method: MethodCheckPermission}).Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if reply.Result != true {
		t.Errorf("expected permission granted, got %v", reply.Result)
	}

	sink := &recordingSink{}
	if err := engine.Listen("stream", nil, sink); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	svc.OnNotificationPosted(notification("com.app", nil))
	if len(sink.received()) != 1 {
		t.Errorf("expected event through engine stream")
	}

	svc.OnDestroy()
	if err := engine.Listen("stream", nil, sink); !errors.Is(err, bridge.ErrNotImplemented) {
		t.Errorf("expected not implemented after teardown, got %v", err)
	}
}

func TestHolderProviderWithoutEngine(t *testing.T) {
	var holder bridge.Holder
	svc := NewService(HolderProvider(&holder, "control", "stream"), Options{}, logger.Nop())
	if err := svc.OnCreate(); !errors.Is(err, ErrContextUnavailable) {
		t.Errorf("expected ErrContextUnavailable, got %v", err)
	}
}
