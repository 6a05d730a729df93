package memory

import (
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"id":1}`)
	uri, err := store.PutObject(context.Background(), "raw/run/2020/en/1.json", "application/json", payload)
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://raw/run/2020/en/1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = '['
	stored, ok := store.Object("raw/run/2020/en/1.json")
	if !ok || string(stored) != `{"id":1}` {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if _, err := store.PutObject(context.Background(), "", "", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}
