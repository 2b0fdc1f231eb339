package debuglog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelOff, "OFF"},
	}

	for _, test := range tests {
		if got := test.level.String(); got != test.expected {
			t.Errorf("LogLevel.String() = %q, want %q", got, test.expected)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"WARN", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"off", LevelOff},
		{" info ", LevelInfo},
		{"INVALID", LevelInfo},
		{"", LevelInfo},
	}

	for _, test := range tests {
		if got := ParseLogLevel(test.input); got != test.expected {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", test.input, got, test.expected)
		}
	}
}

func TestSetupWithLevel(t *testing.T) {
	SetFormat("json")
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	if err := Setup(LevelInfo, logPath); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if GetLevel() != LevelInfo {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelInfo)
	}

	Debugf("debug message")
	Infof("info message")
	Warnf("warn message")
	Errorf("error message")

	if err := Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}

	logContent := string(content)
	if strings.Contains(logContent, "debug message") {
		t.Error("DEBUG message should not appear with INFO level")
	}
	for _, want := range []string{"info message", "warn message", "error message"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("log should contain %q", want)
		}
	}
}

func TestSetupWithLevelOff(t *testing.T) {
	if err := Setup(LevelOff); err != nil {
		t.Fatalf("Setup with LevelOff failed: %v", err)
	}

	if GetLevel() != LevelOff {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelOff)
	}

	// nothing to assert beyond not panicking
	Infof("info message")
	Component("test").Errorf("error message")
}

func TestFieldLoggerJSON(t *testing.T) {
	SetFormat("json")
	var buf bytes.Buffer
	SetOutput(LevelDebug, &buf)
	defer SetOutput(LevelOff, nil)

	logger := WithFields(map[string]interface{}{
		"component": "test",
		"count":     42,
	}).With("action", "testing")

	logger.Infof("test message with %s", "fields")

	var record map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("record is not JSON: %v (%s)", err, buf.String())
	}

	if record["message"] != "test message with fields" {
		t.Errorf("message = %v", record["message"])
	}
	if record["component"] != "test" {
		t.Errorf("component = %v, want test", record["component"])
	}
	if record["action"] != "testing" {
		t.Errorf("action = %v, want testing", record["action"])
	}
	if record["count"] != float64(42) {
		t.Errorf("count = %v, want 42", record["count"])
	}
	if record["level"] != "info" {
		t.Errorf("level = %v, want info", record["level"])
	}
}

func TestConsoleFormat(t *testing.T) {
	SetFormat("console")
	defer SetFormat("json")

	var buf bytes.Buffer
	SetOutput(LevelWarn, &buf)
	defer SetOutput(LevelOff, nil)

	Component("syncer").Infof("hidden")
	Component("syncer").Warnf("visible %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("INFO record should be filtered at WARN level")
	}
	if !strings.Contains(out, "visible 1") || !strings.Contains(out, "component=syncer") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel(LevelDebug)
	if GetLevel() != LevelDebug {
		t.Errorf("SetLevel(LevelDebug) failed, got %v", GetLevel())
	}

	SetLevel(LevelError)
	if GetLevel() != LevelError {
		t.Errorf("SetLevel(LevelError) failed, got %v", GetLevel())
	}
	SetLevel(LevelOff)
}
