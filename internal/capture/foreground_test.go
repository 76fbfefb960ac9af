package capture

import (
	"context"
	"testing"

	"github.com/subtrack/nativebridge/internal/bridge"
	"github.com/subtrack/nativebridge/internal/logger"
)

func TestRegisterForeground(t *testing.T) {
	fg := bridge.NewEngine("foreground", logger.Nop())
	var holder bridge.Holder
	creates := 0
	create := func() *bridge.Engine {
		creates++
		return bridge.NewEngine("background", logger.Nop())
	}

	first := RegisterForeground(fg, "bg", &holder, create, logger.Nop())
	second := RegisterForeground(fg, "bg", &holder, create, logger.Nop())
	if first != second || creates != 1 {
		t.Fatalf("background engine should be created once, got %d creates", creates)
	}

	reply, err := fg.Invoke(context.Background(), "bg", bridge.MethodCall{Method: MethodStartBackgroundService}).Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if reply.Status != bridge.StatusOK || reply.Result != true {
		t.Errorf("unexpected reply %+v", reply)
	}

	reply, _ = fg.Invoke(context.Background(), "bg", bridge.MethodCall{Method: "stop"}).Wait(context.Background())
	if reply.Status != bridge.StatusNotImplemented {
		t.Errorf("expected not implemented, got %s", reply.Status)
	}
}
