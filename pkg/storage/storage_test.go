package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	boltStore, err := OpenBolt(filepath.Join(t.TempDir(), "test.bolt"))
	if err != nil {
		t.Fatalf("opening bolt store: %v", err)
	}
	t.Cleanup(func() { _ = boltStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   boltStore,
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "conv-1|chan-1")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_UpsertThenGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Upsert(ctx, "conv-1|chan-1", []byte(`{"id":"conv-1|chan-1"}`)); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			v, err := s.Get(ctx, "conv-1|chan-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(v) != `{"id":"conv-1|chan-1"}` {
				t.Errorf("unexpected value %q", v)
			}
		})
	}
}

func TestStore_UpsertIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 2; i++ {
				if err := s.Upsert(ctx, "k", []byte("v")); err != nil {
					t.Fatalf("upsert: %v", err)
				}
			}
			v, err := s.Get(ctx, "k")
			if err != nil || string(v) != "v" {
				t.Fatalf("get after double upsert: %q, %v", v, err)
			}
		})
	}
}

func TestStore_ScanByEitherHalf(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Upsert(ctx, "conv-abc|chan-123", []byte("rec")); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			matches := map[string]func(string) bool{
				"prefix": func(k string) bool { return strings.HasPrefix(k, "conv-abc|") },
				"suffix": func(k string) bool { return strings.HasSuffix(k, "|chan-123") },
			}
			for half, match := range matches {
				k, v, err := s.Scan(ctx, match)
				if err != nil {
					t.Fatalf("scan by %s: %v", half, err)
				}
				if k != "conv-abc|chan-123" || string(v) != "rec" {
					t.Errorf("scan by %s: got key %q value %q", half, k, v)
				}
			}
		})
	}
}

func TestStore_ScanNoMatch(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Upsert(ctx, "conv|chan", []byte("rec")); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if _, _, err := s.Scan(ctx, func(string) bool { return false }); !errors.Is(err, ErrNotFound) {
				t.Fatalf("non-matching scan must return ErrNotFound, got %v", err)
			}
			if _, _, err := s.Scan(ctx, nil); !errors.Is(err, ErrNotFound) {
				t.Fatalf("nil match must not match, got %v", err)
			}
		})
	}
}
