package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestPutAndOpenRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	info, err := store.Put(ctx, "bank statement.pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("pdf bytes")) {
		t.Fatalf("size = %d", info.Size)
	}
	if !strings.HasSuffix(info.URL, "bank_statement.pdf") {
		t.Fatalf("url = %q", info.URL)
	}

	f, err := store.Open(info.URL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestPutGeneratesUniqueURLs(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	a, err := store.Put(ctx, "doc.pdf", strings.NewReader("a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Put(ctx, "doc.pdf", strings.NewReader("b"))
	if err != nil {
		t.Fatal(err)
	}
	if a.URL == b.URL {
		t.Fatalf("urls collide: %q", a.URL)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	info, err := store.Put(ctx, "doc.pdf", strings.NewReader("bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, info.URL); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, info.URL); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Open(info.URL); err == nil {
		t.Fatal("blob still readable after delete")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		"tax return 2023.pdf": "tax_return_2023.pdf",
		"":                    "upload",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
