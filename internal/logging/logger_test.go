package logging

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ktxmacro.dev/ktx-macro-go/internal/events"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"DEBUG", LogLevelDebug},
		{"debug", LogLevelDebug},
		{" info ", LogLevelInfo},
		{"WARN", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"Error", LogLevelError},
		{"FATAL", LogLevelFatal},
		{"", LogLevelInfo},
		{"nonsense", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test")
	logger.outputs = []io.Writer{&buf}
	logger.SetMinLevel(LogLevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", errors.New("boom"))

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message logged below min level")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message logged below min level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message missing")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message missing")
	}
	if !strings.Contains(output, "error=boom") {
		t.Error("Error value missing from formatted output")
	}
}

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}
	entry := &LogEntry{
		Timestamp: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		Level:     LogLevelInfo,
		Component: "Engine",
		Message:   "sequence started",
		Context:   map[string]interface{}{"steps": 4},
	}

	got := formatter.Format(entry)

	if !strings.Contains(got, " INFO ") {
		t.Errorf("Formatted entry missing level: %q", got)
	}
	if !strings.Contains(got, "[Engine]") {
		t.Errorf("Formatted entry missing component: %q", got)
	}
	if !strings.Contains(got, "sequence started") {
		t.Errorf("Formatted entry missing message: %q", got)
	}
	if !strings.Contains(got, "steps=4") {
		t.Errorf("Formatted entry missing context: %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("Formatted entry should end with newline")
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test")
	logger.outputs = []io.Writer{&buf}
	logger.SetMinLevel(LogLevelDebug)

	cl := logger.WithContext(map[string]interface{}{"sequence": "farm-loop"})
	cl.Info("starting")
	cl.Error("failed", errors.New("no match"))

	output := buf.String()
	if strings.Count(output, "sequence=farm-loop") != 2 {
		t.Errorf("Pre-set context not applied to every entry: %q", output)
	}
}

func TestErrorReporterHistory(t *testing.T) {
	reporter := NewErrorReporter()
	reporter.SetLogger(newSilentLogger())

	reporter.ReportError(ErrorCategoryCapture, ErrorSeverityHigh, "capture", "screen grab failed", errors.New("no display"))
	reporter.ReportActionError(ErrorCategoryMatching, "matcher", "template below threshold", "act-7", nil)
	reporter.ReportCriticalError(ErrorCategoryEngine, "engine", "worker died", errors.New("panic"), nil)

	recent := reporter.GetRecentErrors(10)
	if len(recent) != 3 {
		t.Fatalf("Expected 3 errors in history, got %d", len(recent))
	}

	// Newest entry last
	if recent[2].Category != ErrorCategoryEngine {
		t.Errorf("Last report category = %s, want %s", recent[2].Category, ErrorCategoryEngine)
	}
	if recent[1].ActionID != "act-7" {
		t.Errorf("Action ID not recorded: %q", recent[1].ActionID)
	}

	byCategory := reporter.GetErrorsByCategory(ErrorCategoryMatching, 5)
	if len(byCategory) != 1 {
		t.Fatalf("Expected 1 matching error, got %d", len(byCategory))
	}

	stats := reporter.GetErrorStats()
	if stats["total"] != 3 {
		t.Errorf("stats total = %d, want 3", stats["total"])
	}
	if stats["severity_critical"] != 1 {
		t.Errorf("stats severity_critical = %d, want 1", stats["severity_critical"])
	}
	if stats["category_capture"] != 1 {
		t.Errorf("stats category_capture = %d, want 1", stats["category_capture"])
	}
	if stats["recoverable"] != 2 || stats["non_recoverable"] != 1 {
		t.Errorf("recoverable split = %d/%d, want 2/1", stats["recoverable"], stats["non_recoverable"])
	}

	reporter.Clear()
	if len(reporter.GetRecentErrors(10)) != 0 {
		t.Error("Clear did not empty history")
	}
}

func TestErrorReporterCallbacks(t *testing.T) {
	reporter := NewErrorReporter()
	reporter.SetLogger(newSilentLogger())

	got := make(chan *ErrorReport, 1)
	reporter.OnError(ErrorSeverityCritical, func(report *ErrorReport) {
		got <- report
	})

	// Non-critical report must not trigger the critical callback
	reporter.ReportError(ErrorCategoryInput, ErrorSeverityLow, "input", "slow move", nil)

	select {
	case <-got:
		t.Fatal("Critical callback fired for low severity report")
	case <-time.After(50 * time.Millisecond):
	}

	reporter.ReportCriticalError(ErrorCategoryEngine, "engine", "fatal", errors.New("dead"), nil)

	select {
	case report := <-got:
		if report.Severity != ErrorSeverityCritical {
			t.Errorf("Callback severity = %s, want critical", report.Severity)
		}
	case <-time.After(time.Second):
		t.Fatal("Critical callback never fired")
	}
}

func TestErrorReporterBoundedHistory(t *testing.T) {
	reporter := NewErrorReporter()
	reporter.SetLogger(newSilentLogger())
	reporter.maxHistory = 5

	for i := 0; i < 12; i++ {
		reporter.ReportError(ErrorCategoryEngine, ErrorSeverityLow, "engine", "tick", nil)
	}

	if got := len(reporter.GetRecentErrors(100)); got != 5 {
		t.Errorf("History length = %d, want bounded at 5", got)
	}
}

func TestEventLoggerWritesEvents(t *testing.T) {
	logDir := t.TempDir()
	bus := events.NewEventBus(10)

	el, err := NewEventLogger(bus, logDir)
	if err != nil {
		t.Fatalf("Failed to create event logger: %v", err)
	}

	bus.Publish(events.NewSequenceStartedEvent("nightly", 3, 1))
	bus.Publish(events.NewActionExecutedEvent("act-1", "click", "open menu", 0))

	// Stop drains the queue; handlers may still be in flight briefly
	bus.Stop()
	time.Sleep(100 * time.Millisecond)

	if err := el.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("Failed to read log dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, string(events.EventTypeSequenceStarted)) {
		t.Errorf("Log missing sequence started event:\n%s", content)
	}
	if !strings.Contains(content, string(events.EventTypeActionExecuted)) {
		t.Errorf("Log missing action executed event:\n%s", content)
	}
	if !strings.Contains(content, "nightly") {
		t.Errorf("Log missing event data:\n%s", content)
	}
}

// newSilentLogger returns a logger that discards all output
func newSilentLogger() *Logger {
	logger := NewLogger("test")
	logger.outputs = []io.Writer{&bytes.Buffer{}}
	return logger
}
