package gallery

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/kalambet/inkframe/internal/storage"
)

// ErrNoMatch is returned when no image satisfies the selection criteria.
var ErrNoMatch = errors.New("no matching images")

// Filter returns the images carrying at least one of the given tags,
// compared case-insensitively, preserving order. An empty tag list keeps
// everything.
func Filter(images []storage.ImageMeta, tags []string) []storage.ImageMeta {
	if len(tags) == 0 {
		return images
	}

	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			wanted[t] = true
		}
	}
	if len(wanted) == 0 {
		return images
	}

	var out []storage.ImageMeta
	for _, img := range images {
		for _, t := range img.Tags {
			if wanted[strings.ToLower(t)] {
				out = append(out, img)
				break
			}
		}
	}
	return out
}

// Random picks one eligible image uniformly at random.
func Random(images []storage.ImageMeta, tags []string) (storage.ImageMeta, error) {
	eligible := Filter(images, tags)
	if len(eligible) == 0 {
		return storage.ImageMeta{}, ErrNoMatch
	}
	return eligible[rand.IntN(len(eligible))], nil
}

// Next returns the image after current in the eligible sequence, wrapping
// around at the end, along with its index. The index counts positions in
// the filtered sequence, so a stale or out-of-range current simply wraps.
func Next(images []storage.ImageMeta, tags []string, current int) (storage.ImageMeta, int, error) {
	eligible := Filter(images, tags)
	if len(eligible) == 0 {
		return storage.ImageMeta{}, 0, ErrNoMatch
	}

	idx := (current + 1) % len(eligible)
	if idx < 0 {
		idx += len(eligible)
	}
	return eligible[idx], idx, nil
}
