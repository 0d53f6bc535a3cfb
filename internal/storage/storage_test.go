package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := NewNamespace(mem, "a")
	b := NewNamespace(mem, "b")

	if err := a.Set(ctx, KeyToken, []byte("tok-a")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := b.Get(ctx, KeyToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found in other namespace, got %v", err)
	}
	got, err := a.Get(ctx, KeyToken)
	if err != nil || string(got) != "tok-a" {
		t.Fatalf("get: %q %v", got, err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	buf := []byte("value")
	_ = mem.Set(ctx, "n", "k", buf)
	buf[0] = 'X'
	got, _ := mem.Get(ctx, "n", "k")
	if string(got) != "value" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
}

func TestNamespaceClear(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	ns := NewNamespace(mem, "sess")
	_ = ns.Set(ctx, KeySession, []byte("{}"))
	_ = ns.Set(ctx, KeyToken, []byte("t"))
	if err := ns.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	for _, k := range []string{KeySession, KeyToken} {
		if _, err := ns.Get(ctx, k); !errors.Is(err, ErrNotFound) {
			t.Fatalf("key %s survived clear", k)
		}
	}
	if err := ns.Delete(ctx, KeyToken); err != nil {
		t.Fatalf("delete of missing key should be a no-op: %v", err)
	}
}
