package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFilePersistentCache_SetAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cache := NewFilePersistentCache(time.Minute, path, &StdLogger{})
	ctx := context.Background()

	if err := cache.Set(ctx, "greeting", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected hello, got %v", got)
	}
}

func TestFilePersistentCache_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	first := NewFilePersistentCache(time.Minute, path, nil)
	if err := first.Set(ctx, "k", "persisted"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := NewFilePersistentCache(time.Minute, path, nil)
	got, err := second.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if got != "persisted" {
		t.Errorf("expected persisted, got %v", got)
	}
}

func TestFilePersistentCache_ExpiredEntryIsMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cache := NewFilePersistentCache(20*time.Millisecond, path, nil)
	ctx := context.Background()

	if err := cache.Set(ctx, "short", "lived"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := cache.Get(ctx, "short"); err == nil {
		t.Error("expected error for expired item, got nil")
	}
}

func TestFilePersistentCache_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	cache := NewFilePersistentCache(time.Minute, path, nil)

	if _, err := cache.Get(context.Background(), "anything"); err == nil {
		t.Error("expected miss on empty cache")
	}
}
