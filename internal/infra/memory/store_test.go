package memory

import (
	"context"
	"testing"
)

func TestStoreGetSetRemove(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", `{"a":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || v != `{"a":1}` {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	if err := store.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected key removed")
	}
}
