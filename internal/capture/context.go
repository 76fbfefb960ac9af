package capture

import (
	"errors"

	"github.com/subtrack/nativebridge/internal/bridge"
)

// ErrContextUnavailable is returned when the background execution context
// does not exist at activation time.
var ErrContextUnavailable = errors.New("capture: background execution context unavailable")

// Handlers are the endpoints the service exposes inside its execution context.
type Handlers struct {
	Control bridge.MethodHandler
	Stream  bridge.StreamHandler
}

// ExecutionContext is the externally owned environment the service runs in.
// The service only attaches to and detaches from it.
type ExecutionContext interface {
	Attach(h Handlers) error
	Detach()
}

// ContextProvider returns the current execution context, or nil if none exists.
type ContextProvider func() ExecutionContext

// EngineContext binds the handlers to a control and a stream channel of a bridge engine.
type EngineContext struct {
	Engine         *bridge.Engine
	ControlChannel string
	StreamChannel  string
}

func (c EngineContext) Attach(h Handlers) error {
	if c.Engine == nil {
		return ErrContextUnavailable
	}
	c.Engine.MethodChannel(c.ControlChannel).SetMethodCallHandler(h.Control)
	c.Engine.EventChannel(c.StreamChannel).SetStreamHandler(h.Stream)
	return nil
}

func (c EngineContext) Detach() {
	if c.Engine == nil {
		return
	}
	c.Engine.MethodChannel(c.ControlChannel).SetMethodCallHandler(nil)
	c.Engine.EventChannel(c.StreamChannel).SetStreamHandler(nil)
}

// HolderProvider resolves the context from the process-wide background engine.
func HolderProvider(holder *bridge.Holder, controlChannel, streamChannel string) ContextProvider {
	return func() ExecutionContext {
		engine := holder.Current()
		if engine == nil {
			return nil
		}
		return EngineContext{Engine: engine, ControlChannel: controlChannel, StreamChannel: streamChannel}
	}
}
