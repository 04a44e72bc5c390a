package fsblob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUploadAndRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	n, err := s.Upload(ctx, "conversations/c1/m1/note.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if n != 5 {
		t.Errorf("size = %d, want 5", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "conversations", "c1", "m1", "note.txt"))
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("blob content = %q", data)
	}

	if err := s.Remove(ctx, "conversations/c1/m1/note.txt"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	// Removing again is not an error.
	if err := s.Remove(ctx, "conversations/c1/m1/note.txt"); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}

func TestURL(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	url := s.URL("conversations/c1/m1/note.txt")
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "note.txt") {
		t.Errorf("URL = %q", url)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := s.Upload(ctx, "../outside", strings.NewReader("x")); err == nil {
		t.Error("parent escape should be rejected")
	}
	if _, err := s.Upload(ctx, "/abs/path", strings.NewReader("x")); err == nil {
		t.Error("absolute path should be rejected")
	}
}

func TestDetectType(t *testing.T) {
	payload := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	mtype, replay, err := DetectType(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("DetectType() error = %v", err)
	}
	if mtype != "image/png" {
		t.Errorf("mtype = %q, want image/png", mtype)
	}

	// The replay reader must return the full original bytes.
	all, err := io.ReadAll(replay)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(all, payload) {
		t.Errorf("replay lost bytes: got %d, want %d", len(all), len(payload))
	}
}

func TestDetectTypeEmptyReader(t *testing.T) {
	mtype, replay, err := DetectType(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("DetectType() error = %v", err)
	}
	if mtype == "" {
		t.Error("empty input should still produce a type")
	}
	all, _ := io.ReadAll(replay)
	if len(all) != 0 {
		t.Errorf("replay produced %d bytes from empty input", len(all))
	}
}
