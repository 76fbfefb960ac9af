package bridge

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCompleterFirstCompletionWins(t *testing.T) {
	c := NewCompleter()

	c.Success([]string{"one"})
	c.Error(CodeScanFailed, "late failure", nil)
	c.NotImplemented()

	reply, err := c.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if reply.Status != StatusOK {
		t.Errorf("expected ok status, got %s", reply.Status)
	}
	if c.Dropped() != 2 {
		t.Errorf("expected 2 dropped completions, got %d", c.Dropped())
	}
}

func TestCompleterConcurrentResolution(t *testing.T) {
	c := NewCompleter()

	var wg sync.WaitGroup
	accepted := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			accepted <- c.Complete(Reply{Status: StatusOK, Result: i})
		}(i)
	}
	wg.Wait()
	close(accepted)

	wins := 0
	for ok := range accepted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one accepted completion, got %d", wins)
	}
	if c.Dropped() != 49 {
		t.Errorf("expected 49 dropped completions, got %d", c.Dropped())
	}
}

func TestCompleterWaitHonoursContext(t *testing.T) {
	c := NewCompleter()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.Wait(ctx); err == nil {
		t.Fatal("expected context error for unresolved completer")
	}
	if c.Resolved() {
		t.Error("completer should still be unresolved")
	}
}

func TestCompleterDoneClosedOnce(t *testing.T) {
	c := NewCompleter()
	c.Error(CodeUnavailable, "Document scanner not available", nil)

	select {
	case <-c.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("done channel not closed")
	}

	reply, _ := c.Wait(context.Background())
	if reply.Error == nil || reply.Error.Code != CodeUnavailable {
		t.Errorf("unexpected reply %+v", reply)
	}
}
