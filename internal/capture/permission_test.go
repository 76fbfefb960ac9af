package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/subtrack/nativebridge/internal/logger"
)

func TestContainsListener(t *testing.T) {
	tests := []struct {
		name     string
		registry string
		appID    string
		want     bool
	}{
		{"exact component", "com.example.subtrack/com.example.subtrack.Listener", "com.example.subtrack", true},
		{"among others", "a.b/.X:com.example.subtrack/.L:c.d/.Y", "com.example.subtrack", true},
		{"absent", "a.b/.X", "com.example.subtrack", false},
		{"empty registry", "", "com.example.subtrack", false},
		{"empty app id", "a.b/.X", "", false},
		// Plain containment: a longer identifier sharing the prefix also matches.
		{"prefix sibling", "com.example.subtrack.beta/.L", "com.example.subtrack", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsListener(tt.registry, tt.appID); got != tt.want {
				t.Errorf("ContainsListener(%q, %q) = %v, want %v", tt.registry, tt.appID, got, tt.want)
			}
		})
	}
}

func TestFileRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enabled_listeners")

	reg := FileRegistry{Path: path}
	got, err := reg.EnabledListeners(context.Background())
	if err != nil || got != "" {
		t.Fatalf("missing file should be empty registry, got %q, %v", got, err)
	}

	if err := os.WriteFile(path, []byte("com.example.subtrack/.Listener\n"), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	got, err = reg.EnabledListeners(context.Background())
	if err != nil {
		t.Fatalf("EnabledListeners() error = %v", err)
	}
	if got != "com.example.subtrack/.Listener" {
		t.Errorf("unexpected registry %q", got)
	}
}

func TestFileRegistryReadErrorDeniesPermission(t *testing.T) {
	// A directory cannot be read as a file.
	svc := NewService(nil, Options{AppID: "com.example.subtrack", Registry: FileRegistry{Path: t.TempDir()}}, logger.Nop())
	if svc.CheckPermission(context.Background()) {
		t.Error("expected permission to be denied on registry read error")
	}
}

func TestCommandOpener(t *testing.T) {
	if err := (CommandOpener{}).OpenListenerSettings(context.Background()); err == nil {
		t.Error("expected error without a command")
	}
	if err := (CommandOpener{Command: []string{"/nonexistent/settings-opener"}}).OpenListenerSettings(context.Background()); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestLogOpener(t *testing.T) {
	if err := (LogOpener{Logger: logger.Nop()}).OpenListenerSettings(context.Background()); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
