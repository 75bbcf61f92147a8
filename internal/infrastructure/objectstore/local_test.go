package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return store
}

func put(t *testing.T, store *LocalStore, key, content string) {
	t.Helper()
	if err := store.Put(context.Background(), key, bytes.NewReader([]byte(content)), "application/octet-stream"); err != nil {
		t.Fatalf("Put %s: %v", key, err)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	put(t, store, "firmware/thermo-v2/1.4.2/image", "image-bytes")

	reader, _, err := store.Get(ctx, "firmware/thermo-v2/1.4.2/image")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "image-bytes" {
		t.Errorf("content = %q, want image-bytes", data)
	}
}

func TestLocalStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Get(context.Background(), "coredumps/dev-001/1.dmp")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLocalStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	put(t, store, "coredumps/dev-001/1.dmp", "dump")
	if err := store.Delete(ctx, "coredumps/dev-001/1.dmp"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "coredumps/dev-001/1.dmp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, "coredumps/dev-001/1.dmp"); err != nil {
		t.Errorf("delete of missing key: %v", err)
	}
}

func TestLocalStoreListAndDeletePrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	put(t, store, "firmware/thermo-v2/1.4.2/image", "a")
	put(t, store, "firmware/thermo-v2/1.4.2/symbols", "b")
	put(t, store, "firmware/thermo-v2/1.5.0/image", "c")
	put(t, store, "coredumps/dev-001/1.dmp", "d")

	keys, err := store.List(ctx, "firmware/thermo-v2/1.4.2/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys)
	want := []string{"firmware/thermo-v2/1.4.2/image", "firmware/thermo-v2/1.4.2/symbols"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	if err := store.DeletePrefix(ctx, "firmware/thermo-v2/"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	remaining, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != "coredumps/dev-001/1.dmp" {
		t.Errorf("remaining = %v, want only the dump object", remaining)
	}
}

func TestLocalStoreHealth(t *testing.T) {
	store := newTestStore(t)
	if err := store.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}
