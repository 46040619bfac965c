package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestStoreNamespacesKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewStore(newClient(mr), "proctor")

	if _, ok, err := store.Get(ctx, "quiz_draft"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "quiz_draft", `{"title":"x"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := mr.Get("proctor:quiz_draft"); err != nil || got != `{"title":"x"}` {
		t.Fatalf("expected namespaced key, got %q err=%v", got, err)
	}
	v, ok, err := store.Get(ctx, "quiz_draft")
	if err != nil || !ok || v != `{"title":"x"}` {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	if err := store.Remove(ctx, "quiz_draft"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mr.Exists("proctor:quiz_draft") {
		t.Fatalf("expected key removed")
	}
}
