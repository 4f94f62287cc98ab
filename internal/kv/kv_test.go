package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := store.Put(ctx, "mock-user", []byte(`{"id":"u1"}`)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := store.Put(ctx, "mock-user", []byte(`{"id":"u2"}`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			val, err := store.Get(ctx, "mock-user")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(val) != `{"id":"u2"}` {
				t.Fatalf("expected last write to win, got %s", val)
			}
			if err := store.Delete(ctx, "mock-user"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.Get(ctx, "mock-user"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStoreKeysPrefix(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{XPKey("u1"), XPKey("u2"), AchievementsKey("u1")} {
				if err := store.Put(ctx, key, []byte(`{}`)); err != nil {
					t.Fatalf("put %s: %v", key, err)
				}
			}
			keys, err := store.Keys(ctx, "xp-")
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if len(keys) != 2 {
				t.Fatalf("expected 2 xp keys, got %v", keys)
			}
		})
	}
}

func TestGetJSONCorruption(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if err := store.Put(ctx, KeyMockUser, []byte(`{not json`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out map[string]string
	err := GetJSON(ctx, store, KeyMockUser, &out)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
