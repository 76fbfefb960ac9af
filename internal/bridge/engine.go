package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/subtrack/nativebridge/internal/logger"
)

// Engine is an execution context that owns a set of named channels.
//
// Native code registers handlers on the engine's channels; transports (HTTP,
// WebSocket, NATS) route host requests into it with Invoke, Listen and Cancel.
// Channels are created on first registration and live as long as the engine.
type Engine struct {
	name   string
	logger *logger.Logger

	mu      sync.RWMutex
	methods map[string]*MethodChannel
	events  map[string]*EventChannel
}

// NewEngine creates an empty engine.
func NewEngine(name string, log *logger.Logger) *Engine {
	return &Engine{
		name:    name,
		logger:  log.WithComponent("bridge-engine").WithFields(map[string]interface{}{"engine": name}),
		methods: make(map[string]*MethodChannel),
		events:  make(map[string]*EventChannel),
	}
}

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// MethodChannel returns the method channel registered under name, creating it if needed.
func (e *Engine) MethodChannel(name string) *MethodChannel {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.methods[name]
	if !ok {
		ch = &MethodChannel{name: name}
		e.methods[name] = ch
	}
	return ch
}

// EventChannel returns the event channel registered under name, creating it if needed.
func (e *Engine) EventChannel(name string) *EventChannel {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.events[name]
	if !ok {
		ch = &EventChannel{name: name}
		e.events[name] = ch
	}
	return ch
}

func (e *Engine) lookupMethod(name string) (*MethodChannel, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.methods[name]
	return ch, ok
}

func (e *Engine) lookupEvent(name string) (*EventChannel, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.events[name]
	return ch, ok
}

// Invoke routes call to the named method channel. Unknown channels answer
// not-implemented, the same as a channel without a handler.
func (e *Engine) Invoke(ctx context.Context, channel string, call MethodCall) *Completer {
	ch, ok := e.lookupMethod(channel)
	if !ok {
		e.logger.WithContext(ctx).Debug("invoke on unknown channel",
			slog.String("channel", channel),
			slog.String("method", call.Method))
		result := NewCompleter()
		result.NotImplemented()
		return result
	}
	return ch.Invoke(logger.WithChannel(ctx, channel), call)
}

// Listen attaches sink to the named event channel.
func (e *Engine) Listen(channel string, arguments json.RawMessage, sink EventSink) error {
	ch, ok := e.lookupEvent(channel)
	if !ok {
		return fmt.Errorf("listen on %s: %w", channel, ErrNotImplemented)
	}
	return ch.Listen(arguments, sink)
}

// Cancel detaches sink from the named event channel.
func (e *Engine) Cancel(channel string, arguments json.RawMessage, sink EventSink) error {
	ch, ok := e.lookupEvent(channel)
	if !ok {
		return fmt.Errorf("cancel on %s: %w", channel, ErrNotImplemented)
	}
	return ch.Cancel(arguments, sink)
}

// Holder keeps the process-wide background engine.
//
// The engine is created lazily by the first GetOrCreate call and reused until
// Destroy. Consumers that only attach to the engine use Current and must cope
// with a nil result.
type Holder struct {
	mu     sync.Mutex
	engine *Engine
}

// GetOrCreate returns the held engine, calling create if none exists yet.
// The second return value reports whether create was called.
func (h *Holder) GetOrCreate(create func() *Engine) (*Engine, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine != nil {
		return h.engine, false
	}
	h.engine = create()
	return h.engine, true
}

// Current returns the held engine or nil.
func (h *Holder) Current() *Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine
}

// Destroy drops the held engine so the next GetOrCreate builds a new one.
func (h *Holder) Destroy() {
	h.mu.Lock()
	h.engine = nil
	h.mu.Unlock()
}
