package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<table id=\"hockey-table\"></table>")
	uri, err := store.PutObject(context.Background(), "raw/hockey/job-1/page-1.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://raw/hockey/job-1/page-1.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'
	body, contentType, ok := store.Object("raw/hockey/job-1/page-1.html")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	if body[0] != '<' {
		t.Fatalf("expected stored copy to be immutable, got %q", body)
	}
	if contentType != "text/html" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if paths := store.Paths(); len(paths) != 1 {
		t.Fatalf("unexpected paths %v", paths)
	}
}
