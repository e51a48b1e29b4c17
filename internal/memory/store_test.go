package memory

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	key := Key("project-x", "what is the codename?")

	if !strings.HasPrefix(key, "memory:project-x:") {
		t.Errorf("key = %q, want memory:project-x: prefix", key)
	}
	fragment := strings.TrimPrefix(key, "memory:project-x:")
	if len(fragment) != fragmentLength {
		t.Errorf("fragment length = %d, want %d", len(fragment), fragmentLength)
	}

	if Key("project-x", "what is the codename?") != key {
		t.Error("key derivation must be deterministic")
	}
	if Key("project-x", "a different message") == key {
		t.Error("different messages must produce different keys")
	}
	if Key("other-keyword", "what is the codename?") == key {
		t.Error("different keywords must produce different keys")
	}
}

func TestKeywordPrefix(t *testing.T) {
	key := Key("project-x", "anything")
	if !strings.HasPrefix(key, KeywordPrefix("project-x")) {
		t.Error("every key must match its keyword prefix")
	}
}

func TestLocalStorePutGet(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()

	rec := &Record{Context: "user: hi\nassistant: hello", Timestamp: time.Now(), Keyword: "k"}
	if err := store.Put(ctx, "memory:k:abc", rec, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "memory:k:abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Context != rec.Context {
		t.Errorf("Get = %+v, want %+v", got, rec)
	}
}

func TestLocalStoreGetAbsent(t *testing.T) {
	store := NewLocalStore()
	got, err := store.Get(context.Background(), "memory:k:missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get = %+v, want nil for absent key", got)
	}
}

func TestLocalStoreExpiry(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()

	if err := store.Put(ctx, "memory:k:abc", &Record{Context: "x"}, time.Nanosecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := store.Get(ctx, "memory:k:abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("expired records must read as absent")
	}

	keys, err := store.List(ctx, "memory:k:")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List = %v, want no expired keys", keys)
	}
}

func TestLocalStoreListPrefix(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()

	_ = store.Put(ctx, "memory:a:1", &Record{}, time.Hour)
	_ = store.Put(ctx, "memory:a:2", &Record{}, time.Hour)
	_ = store.Put(ctx, "memory:b:1", &Record{}, time.Hour)

	keys, err := store.List(ctx, "memory:a:")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List = %v, want 2 keys", keys)
	}
}

func TestLocalStoreDelete(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()

	_ = store.Put(ctx, "memory:k:abc", &Record{}, time.Hour)
	if err := store.Delete(ctx, "memory:k:abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Get(ctx, "memory:k:abc"); got != nil {
		t.Error("deleted record still readable")
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, "memory:k:missing"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestLocalStoreDefaultTTL(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()

	if err := store.Put(ctx, "memory:k:abc", &Record{}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "memory:k:abc")
	if err != nil || got == nil {
		t.Error("zero TTL should fall back to the default, not expire immediately")
	}
}
