package gallery

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kalambet/inkframe/internal/storage"
)

func newTestGallery(t *testing.T) *Gallery {
	t.Helper()

	meta, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening metadata store: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	g, err := New(t.TempDir(), meta)
	if err != nil {
		t.Fatalf("creating gallery: %v", err)
	}
	return g
}

func TestPutAndGet(t *testing.T) {
	g := newTestGallery(t)
	data := []byte("fake jpeg bytes")

	stored, err := g.Put("sunset.jpg", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if stored != "sunset.jpg" {
		t.Errorf("stored as %q, want sunset.jpg", stored)
	}

	got, err := g.Get("sunset.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("retrieved bytes differ from stored bytes")
	}

	// The upload must have a metadata row.
	images, err := g.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(images) != 1 || images[0].Filename != "sunset.jpg" {
		t.Errorf("unexpected listing: %+v", images)
	}
}

func TestPutCollisionGetsSuffix(t *testing.T) {
	g := newTestGallery(t)

	first, err := g.Put("photo.jpg", []byte("one"))
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := g.Put("photo.jpg", []byte("two"))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if second == first {
		t.Fatalf("collision not renamed: both stored as %q", first)
	}
	if filepath.Ext(second) != ".jpg" {
		t.Errorf("suffix broke the extension: %q", second)
	}

	// Both originals remain intact.
	if data, err := g.Get(first); err != nil || string(data) != "one" {
		t.Errorf("Get(%q) = %q, %v", first, data, err)
	}
	if data, err := g.Get(second); err != nil || string(data) != "two" {
		t.Errorf("Get(%q) = %q, %v", second, data, err)
	}
}

func TestPutSanitizesPath(t *testing.T) {
	g := newTestGallery(t)

	stored, err := g.Put("../../escape.png", []byte("data"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if stored != "escape.png" {
		t.Errorf("stored as %q, want escape.png", stored)
	}
}

func TestPutRejectsUnsupported(t *testing.T) {
	g := newTestGallery(t)

	for _, filename := range []string{"notes.txt", "archive.zip", ".hidden.jpg", "noext"} {
		if _, err := g.Put(filename, []byte("data")); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Put(%q): expected ErrUnsupported, got %v", filename, err)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	g := newTestGallery(t)

	if _, err := g.Get("missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesFileAndMetadata(t *testing.T) {
	g := newTestGallery(t)

	if _, err := g.Put("gone.jpg", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := g.Delete("gone.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := g.Get("gone.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("file still retrievable after delete: %v", err)
	}
	images, err := g.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("metadata survived delete: %+v", images)
	}
}

func TestDeleteNotFound(t *testing.T) {
	g := newTestGallery(t)

	if err := g.Delete("missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByBasename(t *testing.T) {
	g := newTestGallery(t)

	if _, err := g.Put("beach.jpeg", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if got, err := g.FindByBasename("beach"); err != nil || got != "beach.jpeg" {
		t.Errorf("FindByBasename(beach) = %q, %v", got, err)
	}
	if got, err := g.FindByBasename("beach.jpeg"); err != nil || got != "beach.jpeg" {
		t.Errorf("FindByBasename(beach.jpeg) = %q, %v", got, err)
	}
	if _, err := g.FindByBasename("mountain"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSkipsMissingFiles(t *testing.T) {
	g := newTestGallery(t)

	if _, err := g.Put("kept.jpg", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := g.Put("orphan.jpg", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Remove the file behind the store's back; the stale row must be skipped.
	if err := os.Remove(filepath.Join(g.dir, "orphan.jpg")); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	images, err := g.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(images) != 1 || images[0].Filename != "kept.jpg" {
		t.Errorf("unexpected listing: %+v", images)
	}
}
