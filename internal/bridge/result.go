package bridge

import (
	"context"
	"sync"
)

// Result receives the outcome of a method call. Implementations must accept
// being completed from any goroutine.
type Result interface {
	Success(result interface{})
	Error(code, message string, details interface{})
	NotImplemented()
}

// Completer is a single-resolution Result: the first completion wins and every
// later one is ignored. Waiters observe the winning Reply.
type Completer struct {
	mu       sync.Mutex
	done     chan struct{}
	reply    Reply
	resolved bool
	// dropped counts completions that arrived after resolution.
	dropped int
}

// NewCompleter returns an unresolved Completer.
func NewCompleter() *Completer {
	return &Completer{done: make(chan struct{})}
}

// Complete resolves the completer with r. It reports whether r was accepted.
func (c *Completer) Complete(r Reply) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		c.dropped++
		return false
	}
	c.reply = r
	c.resolved = true
	close(c.done)
	return true
}

func (c *Completer) Success(result interface{}) {
	c.Complete(Reply{Status: StatusOK, Result: result})
}

func (c *Completer) Error(code, message string, details interface{}) {
	c.Complete(Reply{
		Status: StatusError,
		Error:  &MethodError{Code: code, Message: message, Details: details},
	})
}

func (c *Completer) NotImplemented() {
	c.Complete(Reply{Status: StatusNotImplemented})
}

// Done is closed once the completer is resolved.
func (c *Completer) Done() <-chan struct{} {
	return c.done
}

// Resolved reports whether a reply has been accepted.
func (c *Completer) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Dropped returns how many completions were ignored after resolution.
func (c *Completer) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Wait blocks until the completer is resolved or ctx is done.
func (c *Completer) Wait(ctx context.Context) (Reply, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}
