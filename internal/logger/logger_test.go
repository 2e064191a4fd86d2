package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"JSON", Config{Level: "info", Format: "json"}, false},
		{"Console", Config{Level: "debug", Format: "console"}, false},
		{"BadLevel", Config{Level: "loud", Format: "json"}, true},
		{"FileWithoutPath", Config{Level: "info", File: &FileConfig{Enabled: true}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if l.Logger == nil {
				t.Fatal("Expected a zap logger")
			}
		})
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.log")
	l, err := New(Config{Level: "info", Format: "json", File: &FileConfig{
		Enabled: true,
		Path:    path,
		MaxSize: 1,
	}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithComponent("pipeline").WithSession(12).WithRequestID("req-1").Info("Frame processed")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Log file not written: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"component":"pipeline"`, `"session_id":12`, `"request_id":"req-1"`, `"msg":"Frame processed"`} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %s in %s", want, line)
		}
	}
}
