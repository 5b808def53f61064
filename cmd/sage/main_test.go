package main

import (
	"context"
	"testing"

	"github.com/sagedesk/sage"
	"github.com/sagedesk/sage/internal/tools"
)

func TestOfflineEngineDegradesToFallback(t *testing.T) {
	registry := sage.NewRegistry()
	if err := tools.Setup(registry); err != nil {
		t.Fatalf("tool setup failed: %v", err)
	}

	engine, err := finishEngine(registry, offlinePlanner{}, nil)
	if err != nil {
		t.Fatalf("engine construction must not require an API key: %v", err)
	}
	defer engine.Close()

	report, err := engine.Run(context.Background(), "set volume to 40")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.UsedFallback {
		t.Error("request should be handled by the fallback rules")
	}
	if !report.OverallSuccess {
		t.Errorf("fallback volume request should succeed: %+v", report)
	}
}

func TestOfflineEngineUnhandledUtterance(t *testing.T) {
	registry := sage.NewRegistry()
	if err := tools.Setup(registry); err != nil {
		t.Fatalf("tool setup failed: %v", err)
	}

	engine, err := finishEngine(registry, offlinePlanner{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	report, err := engine.Run(context.Background(), "compose a symphony in d minor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallSuccess {
		t.Error("unmatched utterance should not claim success")
	}
	if !report.UsedFallback {
		t.Error("report should mark the fallback path")
	}
}
