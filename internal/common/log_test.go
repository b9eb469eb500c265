package common

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoggerCapturesComponentAndAttributes(t *testing.T) {
	logger := Logger()
	logger.Info("testcomp: something happened", "rows", 3)

	entries := LogEntries()
	if len(entries) == 0 {
		t.Fatal("expected captured entries")
	}
	var found *LogEntry
	for i := range entries {
		if entries[i].Message == "testcomp: something happened" {
			found = &entries[i]
		}
	}
	if found == nil {
		t.Fatal("emitted record not captured")
	}
	if found.Component != "testcomp" {
		t.Fatalf("component = %q, want testcomp", found.Component)
	}
	if found.Level != "info" {
		t.Fatalf("level = %q, want info", found.Level)
	}
	if found.Attributes["rows"] != int64(3) {
		t.Fatalf("attributes = %v", found.Attributes)
	}
}

func TestLoggerIsSingleton(t *testing.T) {
	if Logger() != Logger() {
		t.Fatal("Logger must return the same instance")
	}
}

func TestSinkKeepsBoundedHistory(t *testing.T) {
	s := &logSink{max: 3}
	for i := 0; i < 5; i++ {
		s.capture(slog.NewRecord(time.Now(), slog.LevelInfo, "m", 0))
	}
	if got := len(s.entries()); got != 3 {
		t.Fatalf("history = %d entries, want 3", got)
	}
}
