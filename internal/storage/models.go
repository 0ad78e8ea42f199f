package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ImageMeta is the metadata row for one stored image. Tags are stored
// lowercase; normalization happens on write so readers never see mixed case.
type ImageMeta struct {
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Tags        []string  `json:"tags"`
}

// TagCount is a tag name with the number of images carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
