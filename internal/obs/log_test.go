package obs

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogRequestWritesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	orig := Logger()
	SetLogger(zap.New(core))
	defer SetLogger(orig)

	LogRequest("request_complete", map[string]any{"path": "/", "status": 200})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["path"] != "/" {
		t.Fatalf("unexpected path: %v", ctx["path"])
	}
	if entries[0].Message != "request_complete" {
		t.Fatalf("unexpected msg: %s", entries[0].Message)
	}
}

func TestInitLoggerUnknownLevel(t *testing.T) {
	orig := Logger()
	defer SetLogger(orig)
	l := InitLogger("loud")
	if !l.Core().Enabled(zap.InfoLevel) || l.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected info level fallback")
	}
}
