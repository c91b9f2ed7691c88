package logging

import (
	"bytes"
	"strings"
	"testing"
)

func newBufLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&Config{Level: level, Output: &buf}), &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufLogger(LevelWarn)

	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	l.Error("also kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("messages below the level leaked through: %q", out)
	}
	if !strings.Contains(out, "[WARN] kept") || !strings.Contains(out, "[ERROR] also kept") {
		t.Errorf("expected warn and error lines, got %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newBufLogger(LevelError)

	l.Info("before")
	l.SetLevel(LevelDebug)
	l.Info("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("info line emitted at error level: %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("info line missing after SetLevel: %q", out)
	}
}

func TestKeyValuePairs(t *testing.T) {
	l, buf := newBufLogger(LevelInfo)

	l.Info("dispatching", "pu", 3, "lpa", 42)
	if !strings.Contains(buf.String(), "dispatching pu=3 lpa=42") {
		t.Errorf("key=value rendering wrong: %q", buf.String())
	}

	buf.Reset()
	l.Info("odd args", "orphan")
	if !strings.Contains(buf.String(), "orphan=?") {
		t.Errorf("dangling key rendering wrong: %q", buf.String())
	}
}

func TestPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelInfo, Output: &buf, Prefix: "dispatcher"})

	l.Info("pinned")
	if !strings.Contains(buf.String(), "[INFO] dispatcher: pinned") {
		t.Errorf("prefix rendering wrong: %q", buf.String())
	}
}

func TestPrintfStyle(t *testing.T) {
	l, buf := newBufLogger(LevelDebug)

	l.Debugf("pu=%d busy", 7)
	l.Printf("scan pass %d", 2)

	out := buf.String()
	if !strings.Contains(out, "[DEBUG] pu=7 busy") {
		t.Errorf("Debugf rendering wrong: %q", out)
	}
	if !strings.Contains(out, "[INFO] scan pass 2") {
		t.Errorf("Printf should log at info level: %q", out)
	}
}

func TestLevelString(t *testing.T) {
	cases := map[LogLevel]string{
		LevelDebug:   "DEBUG",
		LevelInfo:    "INFO",
		LevelWarn:    "WARN",
		LevelError:   "ERROR",
		LogLevel(42): "LEVEL(42)",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelInfo, Output: &buf}))

	Info("through the default", "k", "v")
	if !strings.Contains(buf.String(), "through the default k=v") {
		t.Errorf("default logger not used: %q", buf.String())
	}
	if Default() == nil {
		t.Fatal("Default must never return nil")
	}
}
