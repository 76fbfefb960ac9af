package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotImplemented is returned when a channel has no handler attached.
var ErrNotImplemented = errors.New("bridge: not implemented")

// MethodHandler serves calls on a MethodChannel. The handler owns result and
// may complete it synchronously or from another goroutine.
type MethodHandler func(ctx context.Context, call MethodCall, result Result)

// MethodChannel is a named request/response endpoint with a single replaceable
// handler slot. A nil handler means calls are answered with not-implemented.
type MethodChannel struct {
	name    string
	mu      sync.RWMutex
	handler MethodHandler
}

// Name returns the channel name.
func (c *MethodChannel) Name() string { return c.name }

// SetMethodCallHandler replaces the current handler. Passing nil detaches it.
func (c *MethodChannel) SetMethodCallHandler(h MethodHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// HasHandler reports whether a handler is attached.
func (c *MethodChannel) HasHandler() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler != nil
}

// Invoke dispatches call to the attached handler and returns the completer the
// handler resolves. Handler panics are converted into a PANIC error reply.
func (c *MethodChannel) Invoke(ctx context.Context, call MethodCall) *Completer {
	result := NewCompleter()

	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h == nil {
		result.NotImplemented()
		return result
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Error(CodePanic, fmt.Sprintf("handler for %s panicked", call.Method), fmt.Sprint(r))
			}
		}()
		h(ctx, call, result)
	}()
	return result
}

// EventSink receives the events of a stream. It is handed to a StreamHandler
// on listen and must not be used after the stream is cancelled.
type EventSink interface {
	Success(event interface{})
	Error(code, message string, details interface{})
	EndOfStream()
}

// StreamHandler reacts to a consumer starting or stopping a stream.
// OnCancel receives the sink that is being cancelled so a handler can ignore
// cancellations of sinks it already replaced.
type StreamHandler interface {
	OnListen(arguments json.RawMessage, sink EventSink)
	OnCancel(arguments json.RawMessage, sink EventSink)
}

// EventChannel is a named stream endpoint with a single replaceable handler slot.
type EventChannel struct {
	name    string
	mu      sync.RWMutex
	handler StreamHandler
}

// Name returns the channel name.
func (c *EventChannel) Name() string { return c.name }

// SetStreamHandler replaces the current stream handler. Passing nil detaches it.
func (c *EventChannel) SetStreamHandler(h StreamHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// HasHandler reports whether a stream handler is attached.
func (c *EventChannel) HasHandler() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler != nil
}

// Listen starts delivering events to sink.
func (c *EventChannel) Listen(arguments json.RawMessage, sink EventSink) error {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h == nil {
		return fmt.Errorf("listen on %s: %w", c.name, ErrNotImplemented)
	}
	h.OnListen(arguments, sink)
	return nil
}

// Cancel stops delivering events to sink.
func (c *EventChannel) Cancel(arguments json.RawMessage, sink EventSink) error {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h == nil {
		return fmt.Errorf("cancel on %s: %w", c.name, ErrNotImplemented)
	}
	h.OnCancel(arguments, sink)
	return nil
}
