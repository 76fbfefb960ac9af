package capture

import (
	"context"

	"github.com/subtrack/nativebridge/internal/bridge"
	"github.com/subtrack/nativebridge/internal/logger"
)

// MethodStartBackgroundService is the only method of the background channel.
const MethodStartBackgroundService = "startBackgroundService"

// RegisterForeground attaches the background channel handler to the
// foreground engine and makes sure the background engine exists. The
// returned engine is the one held by holder.
func RegisterForeground(foreground *bridge.Engine, channel string, holder *bridge.Holder, create func() *bridge.Engine, log *logger.Logger) *bridge.Engine {
	log = log.WithComponent("foreground")

	foreground.MethodChannel(channel).SetMethodCallHandler(func(ctx context.Context, call bridge.MethodCall, result bridge.Result) {
		if call.Method != MethodStartBackgroundService {
			result.NotImplemented()
			return
		}
		// The capture service starts on its own; the call only acknowledges.
		result.Success(true)
	})

	engine, created := holder.GetOrCreate(create)
	if created {
		log.Info("background engine created", "engine", engine.Name())
	} else {
		log.Debug("reusing background engine", "engine", engine.Name())
	}
	return engine
}
