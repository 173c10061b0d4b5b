package storage

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMediaStoreSaveAndOpen(t *testing.T) {
	media, err := NewMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaStore returned error: %v", err)
	}

	path, err := media.Save("videos", "clip.mp4", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if !strings.HasPrefix(path, "videos/") || !strings.HasSuffix(path, "-clip.mp4") {
		t.Fatalf("unexpected stored path %q", path)
	}

	file, size, err := media.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer file.Close()
	if size != int64(len("payload")) {
		t.Fatalf("size = %d, want %d", size, len("payload"))
	}
	content, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(content) != "payload" {
		t.Fatalf("content = %q", content)
	}
}

func TestMediaStoreRejectsTraversal(t *testing.T) {
	media, err := NewMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaStore returned error: %v", err)
	}

	for _, name := range []string{"../etc/passwd", "..", "a/b", `a\b`, ".hidden", ""} {
		if _, err := media.Save("videos", name, strings.NewReader("x")); !errors.Is(err, ErrInvalidMediaName) {
			t.Fatalf("Save(%q) = %v, want ErrInvalidMediaName", name, err)
		}
	}
	for _, stored := range []string{"videos/../store.json", "..", `videos/a\b`, "videos/.hidden", ""} {
		if _, _, err := media.Open(stored); !errors.Is(err, ErrInvalidMediaName) {
			t.Fatalf("Open(%q) = %v, want ErrInvalidMediaName", stored, err)
		}
	}
}

func TestMediaStoreRemoveMissingIsNoError(t *testing.T) {
	media, err := NewMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaStore returned error: %v", err)
	}
	if err := media.Remove("videos/gone.mp4"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
}
