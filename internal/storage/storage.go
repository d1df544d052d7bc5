package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobInfo describes a stored blob.
type BlobInfo struct {
	URL  string
	Size int64
}

// BlobStore is the file-storage collaborator. Implementations own the bytes;
// callers keep only the opaque URL.
type BlobStore interface {
	Put(ctx context.Context, filename string, r io.Reader) (BlobInfo, error)
	Delete(ctx context.Context, url string) error
}

// DiskStore stores blobs under a local directory. The returned URL is the
// path relative to Root.
type DiskStore struct {
	Root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{Root: root}, nil
}

func (s *DiskStore) Put(ctx context.Context, filename string, r io.Reader) (BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return BlobInfo{}, err
	}
	name := uuid.New().String() + "-" + sanitizeFilename(filename)
	path := filepath.Join(s.Root, name)
	f, err := os.Create(path)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return BlobInfo{}, fmt.Errorf("write blob: %w", err)
	}
	return BlobInfo{URL: name, Size: n}, nil
}

func (s *DiskStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := filepath.Base(url)
	if clean == "." || clean == string(filepath.Separator) {
		return fmt.Errorf("invalid blob url %q", url)
	}
	err := os.Remove(filepath.Join(s.Root, clean))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Open returns a reader for a stored blob.
func (s *DiskStore) Open(url string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.Root, filepath.Base(url)))
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
