// Package fsblob is a filesystem implementation of the blob store, rooted
// at a directory owned by the session.
package fsblob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Store writes blobs under Root. Locator paths use forward slashes and may
// not escape the root.
type Store struct {
	root string
}

// New creates a blob store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Upload implements blob.Store.
func (s *Store) Upload(_ context.Context, path string, r io.Reader) (int64, error) {
	full, err := s.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return 0, fmt.Errorf("write blob: %w", err)
	}
	return n, nil
}

// Remove implements blob.Store.
func (s *Store) Remove(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// URL implements blob.Store with a file:// URL.
func (s *Store) URL(path string) string {
	full, err := s.resolve(path)
	if err != nil {
		return ""
	}
	return "file://" + filepath.ToSlash(full)
}

func (s *Store) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

// DetectType sniffs the MIME type from the head of r and returns the type
// together with a reader that replays the consumed bytes.
func DetectType(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	head = head[:n]
	mtype := mimetype.Detect(head)
	return mtype.String(), io.MultiReader(bytes.NewReader(head), r), nil
}
