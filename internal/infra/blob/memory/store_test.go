package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"certcore/internal/blob/core"
)

func TestPutReplacesAndGetCopies(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, err := store.Put(ctx, "k", strings.NewReader("one"), core.PutOptions{Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), core.PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "two" {
		t.Fatalf("body = %q", body)
	}
	if info.Size != 3 {
		t.Fatalf("size = %d", info.Size)
	}

	if _, _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"a/1", "a/2", "b/1"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	infos, err := store.List(ctx, "a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "a/1" {
		t.Fatalf("unexpected list %+v", infos)
	}
	ok, err := store.Delete(ctx, "a/1")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "a/1"); ok {
		t.Fatalf("double delete should report missing")
	}
}

func TestPresignUnsupported(t *testing.T) {
	if _, err := New().PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
