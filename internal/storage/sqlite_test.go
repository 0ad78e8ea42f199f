package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestAddAndGetImage(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := ImageMeta{
		Filename:    "sunset.jpg",
		Title:       "Sunset over the bay",
		Description: "Taken from the pier",
		UploadedAt:  now,
	}
	if err := s.AddImage(want); err != nil {
		t.Fatalf("AddImage: %v", err)
	}

	got, err := s.GetImageMeta("sunset.jpg")
	if err != nil {
		t.Fatalf("GetImageMeta: %v", err)
	}
	if got.Title != want.Title || got.Description != want.Description {
		t.Errorf("metadata mismatch: got %+v", got)
	}
	if !got.UploadedAt.Equal(now) {
		t.Errorf("uploaded_at mismatch: got %v want %v", got.UploadedAt, now)
	}
}

func TestGetImageMetaNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetImageMeta("nope.png")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveImageCascadesTags(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddImage(ImageMeta{Filename: "a.png"}); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := s.AddImageTag("a.png", "winter"); err != nil {
		t.Fatalf("AddImageTag: %v", err)
	}

	if err := s.RemoveImage("a.png"); err != nil {
		t.Fatalf("RemoveImage: %v", err)
	}

	var links int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM image_tags`).Scan(&links); err != nil {
		t.Fatalf("counting image_tags: %v", err)
	}
	if links != 0 {
		t.Errorf("expected tag links to cascade, found %d", links)
	}
}

func TestTagsLowercasedAndDeduped(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddImage(ImageMeta{Filename: "a.png"}); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := s.AddImageTag("a.png", "  Winter "); err != nil {
		t.Fatalf("AddImageTag: %v", err)
	}
	if err := s.AddImageTag("a.png", "winter"); err != nil {
		t.Fatalf("AddImageTag (dup): %v", err)
	}

	m, err := s.GetImageMeta("a.png")
	if err != nil {
		t.Fatalf("GetImageMeta: %v", err)
	}
	if len(m.Tags) != 1 || m.Tags[0] != "winter" {
		t.Errorf("expected single lowercase tag, got %v", m.Tags)
	}
}

func TestRemoveImageTagPrunesOrphans(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddImage(ImageMeta{Filename: "a.png"}); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := s.AddImageTag("a.png", "city"); err != nil {
		t.Fatalf("AddImageTag: %v", err)
	}
	if err := s.RemoveImageTag("a.png", "city"); err != nil {
		t.Fatalf("RemoveImageTag: %v", err)
	}

	tags, err := s.AllTags()
	if err != nil {
		t.Fatalf("AllTags: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("expected orphaned tag pruned, got %v", tags)
	}

	if err := s.RemoveImageTag("a.png", "city"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second removal, got %v", err)
	}
}

func TestListImagesStableOrder(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"c.png", "a.png", "b.png"} {
		err := s.AddImage(ImageMeta{Filename: name, UploadedAt: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("AddImage %s: %v", name, err)
		}
	}

	list, err := s.ListImages()
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	want := []string{"c.png", "a.png", "b.png"}
	if len(list) != len(want) {
		t.Fatalf("expected %d images, got %d", len(want), len(list))
	}
	for i := range want {
		if list[i].Filename != want[i] {
			t.Errorf("position %d: got %s want %s", i, list[i].Filename, want[i])
		}
	}
}

func TestAllTagsWithCounts(t *testing.T) {
	s := openTestStore(t)

	for _, name := range []string{"a.png", "b.png"} {
		if err := s.AddImage(ImageMeta{Filename: name}); err != nil {
			t.Fatalf("AddImage: %v", err)
		}
		if err := s.AddImageTag(name, "shared"); err != nil {
			t.Fatalf("AddImageTag: %v", err)
		}
	}
	if err := s.AddImageTag("a.png", "solo"); err != nil {
		t.Fatalf("AddImageTag: %v", err)
	}

	tags, err := s.AllTags()
	if err != nil {
		t.Fatalf("AllTags: %v", err)
	}
	counts := map[string]int{}
	for _, tc := range tags {
		counts[tc.Name] = tc.Count
	}
	if counts["shared"] != 2 || counts["solo"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
