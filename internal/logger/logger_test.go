package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer

	config := &Config{
		Level:       DEBUG,
		Format:      TEXT,
		Output:      &buf,
		DefaultTags: map[string]interface{}{"test": true},
	}
	logger := New(config)

	logger.Debug("This is a debug message")
	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "This is a debug message") {
		t.Errorf("Expected debug message in log output, got: %s", buf.String())
	}

	buf.Reset()
	logger.Info("Matched %s with score %.2f", "a.py", 0.5)
	if !strings.Contains(buf.String(), "[INFO] Matched a.py with score 0.50") {
		t.Errorf("Expected formatted info message, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "logger_test.go") {
		t.Errorf("Expected caller to be the test file, got: %s", buf.String())
	}

	buf.Reset()
	logger.WithContext("store", "corpus").Warn("This is a warning")
	if !strings.Contains(buf.String(), "[store.corpus]") {
		t.Errorf("Expected warning with context in log output, got: %s", buf.String())
	}

	buf.Reset()
	logger.WithField("zeta", 1).WithField("alpha", "value").Error("This is an error")
	if !strings.Contains(buf.String(), "alpha=value test=true zeta=1") {
		t.Errorf("Expected sorted fields in log output, got: %s", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: WARN, Output: &buf})

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered, got: %s", buf.String())
	}

	logger.SetLevel(DISABLED)
	logger.Error("hidden too")
	if buf.Len() != 0 {
		t.Errorf("Expected disabled logger to be silent, got: %s", buf.String())
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger := New(&Config{
		Level:  INFO,
		Format: JSON,
		Output: &buf,
	})

	jsonLogger.WithField("quote", `say "hi"`).WithField("err", errors.New("boom")).InfoContext("matcher", "JSON message")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "INFO" || entry["message"] != "JSON message" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	if entry["quote"] != `say "hi"` || entry["err"] != "boom" || entry["context"] != "matcher" {
		t.Errorf("Unexpected fields: %v", entry)
	}
}

func TestDerivedLoggersDoNotShareFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: INFO, Output: &buf})
	_ = base.WithField("child", true)

	base.Info("base")
	if strings.Contains(buf.String(), "child") {
		t.Errorf("Derived field leaked into base logger: %s", buf.String())
	}
}

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	base := FromSettings("debug", "text", &buf)
	slogger := base.Slog().With("component", "store").WithGroup("db")

	slogger.Debug("Opened store", "path", "data/x.db", slog.Group("rows", "total", 3))
	out := buf.String()
	for _, want := range []string{"[DEBUG] Opened store", "component=store", "db.path=data/x.db", "db.rows.total=3", "service=codematch"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}

	buf.Reset()
	base.SetLevel(ERROR)
	slogger.Warn("filtered")
	if buf.Len() != 0 {
		t.Errorf("Expected warn to be filtered, got: %s", buf.String())
	}
}

func TestDerivedLoggerFollowsLevel(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: INFO, Output: &buf})
	child := base.WithField("component", "matcher").WithContext("scan")

	base.SetLevel(ERROR)
	child.Warn("filtered")
	if buf.Len() != 0 {
		t.Errorf("Expected child warn to be filtered, got: %s", buf.String())
	}

	base.SetLevel(DEBUG)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "[DEBUG] [scan] visible") {
		t.Errorf("Expected child debug after lowering level, got: %s", buf.String())
	}
	if child.Level() != DEBUG {
		t.Errorf("child.Level() = %v, want %v", child.Level(), DEBUG)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"off":     DISABLED,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if ParseFormat("JSON") != JSON || ParseFormat("text") != TEXT || ParseFormat("") != TEXT {
		t.Errorf("ParseFormat returned unexpected values")
	}
}

func TestGetLogger(t *testing.T) {
	var buf bytes.Buffer
	original := GetDefaultLogger()
	defer SetDefaultLogger(original)

	SetDefaultLogger(New(&Config{Level: INFO, Output: &buf}))
	GetLogger("cli").Info("hello")
	if !strings.Contains(buf.String(), "name=cli") {
		t.Errorf("Expected name field, got: %s", buf.String())
	}
}
