package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	l.Info("bridge started on %s", "/dev/ttyACM0")
	l.Debug("hidden")
	l.LogEvent(LevelWarn, "openclaw", "sink_failed", "serial write failed", "EIO")

	data, err := os.ReadFile(l.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "[INFO] bridge started on /dev/ttyACM0") {
		t.Errorf("missing info line:\n%s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(out, "[WARN] [openclaw] serial write failed") {
		t.Errorf("missing event line:\n%s", out)
	}
	if !strings.Contains(out, `"event":"sink_failed"`) {
		t.Errorf("missing JSON line:\n%s", out)
	}

	link := filepath.Join(dir, "logs", FilePrefix+".log")
	if target, err := os.Readlink(link); err != nil || !strings.HasPrefix(target, FilePrefix+"-") {
		t.Errorf("symlink = %q, %v", target, err)
	}
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsole(&buf)
	l.SetLevel(LevelDebug)

	l.Debug("line %d", 3)
	if !strings.Contains(buf.String(), "[DEBUG] line 3") {
		t.Errorf("console output = %q", buf.String())
	}
	if strings.Contains(buf.String(), "JSON:") {
		t.Error("console should not get JSON lines")
	}
	if l.LogPath() != "" {
		t.Errorf("LogPath() = %q, want empty", l.LogPath())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("nothing")
	l.SetLevel(LevelDebug)
	if l.Enabled(LevelError) {
		t.Error("nil logger should not be enabled")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsole(&buf)
	w := l.Writer()
	w.Write([]byte("100% done\n"))
	if !strings.Contains(buf.String(), "[INFO] 100% done") {
		t.Errorf("writer output = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"", LevelInfo, true},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
