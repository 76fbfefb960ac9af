package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/subtrack/nativebridge/internal/logger"
)

// Registry exposes the platform's enabled-listener registry: a flat string
// listing the components allowed to observe notifications.
type Registry interface {
	EnabledListeners(ctx context.Context) (string, error)
}

// StaticRegistry is a registry with a fixed value.
type StaticRegistry string

func (r StaticRegistry) EnabledListeners(context.Context) (string, error) {
	return string(r), nil
}

// FileRegistry reads the registry from a file on every lookup.
// A missing file is an empty registry.
type FileRegistry struct {
	Path string
}

func (r FileRegistry) EnabledListeners(context.Context) (string, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read enabled listeners: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ContainsListener reports whether appID appears anywhere in registry.
// Containment is a plain substring match.
func ContainsListener(registry, appID string) bool {
	if appID == "" {
		return false
	}
	return strings.Contains(registry, appID)
}

// SettingsOpener brings up the surface where the user grants listener access.
type SettingsOpener interface {
	OpenListenerSettings(ctx context.Context) error
}

// CommandOpener runs a host command and does not wait for it to exit.
type CommandOpener struct {
	Command []string
	Logger  *logger.Logger
}

func (o CommandOpener) OpenListenerSettings(ctx context.Context) error {
	if len(o.Command) == 0 {
		return errors.New("no settings command configured")
	}

	cmd := exec.Command(o.Command[0], o.Command[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start settings command: %w", err)
	}

	go func() {
		if err := cmd.Wait(); err != nil && o.Logger != nil {
			o.Logger.LogError(ctx, err, "settings command exited with error",
				slog.String("command", o.Command[0]))
		}
	}()
	return nil
}

// LogOpener only records the request. Used on hosts without a settings surface.
type LogOpener struct {
	Logger *logger.Logger
}

func (o LogOpener) OpenListenerSettings(ctx context.Context) error {
	if o.Logger != nil {
		o.Logger.WithContext(ctx).Info("listener settings requested, grant notification access for this app")
	}
	return nil
}
