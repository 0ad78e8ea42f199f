// Package gallery manages the original photo files and their selection.
//
// Originals live on disk under <data_dir>/images; everything else about an
// image (title, description, tags) lives in the metadata store. The gallery
// joins the two, so callers never touch either layer directly.
package gallery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/inkframe/internal/storage"
)

var (
	// ErrNotFound is returned when the requested image does not exist.
	ErrNotFound = errors.New("image not found")
	// ErrUnsupported is returned for files whose extension is not a
	// supported image format.
	ErrUnsupported = errors.New("unsupported image format")
)

// allowedExts are the formats the render pipeline can decode.
var allowedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
}

// Gallery stores original image files and their metadata.
type Gallery struct {
	dir    string
	meta   *storage.Store
	logger *slog.Logger
}

// New creates a Gallery rooted at <dataDir>/images, creating the
// directory if needed.
func New(dataDir string, meta *storage.Store) (*Gallery, error) {
	dir := filepath.Join(dataDir, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating images directory: %w", err)
	}
	return &Gallery{dir: dir, meta: meta, logger: slog.Default()}, nil
}

// sanitize reduces a client-supplied filename to a safe base name and
// checks its extension.
func sanitize(filename string) (string, error) {
	base := filepath.Base(filepath.ToSlash(filename))
	if base == "" || base == "." || base == ".." || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, filename)
	}
	if !allowedExts[strings.ToLower(filepath.Ext(base))] {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, filename)
	}
	return base, nil
}

// Put stores image data under a sanitized version of filename and records
// a metadata row. If the name is already taken, a short unique suffix is
// inserted before the extension. Returns the filename actually stored.
func (g *Gallery) Put(filename string, data []byte) (string, error) {
	base, err := sanitize(filename)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(filepath.Join(g.dir, base)); err == nil {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		base = fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], ext)
	}

	if err := os.WriteFile(filepath.Join(g.dir, base), data, 0o644); err != nil {
		return "", fmt.Errorf("writing image file: %w", err)
	}

	if err := g.meta.AddImage(storage.ImageMeta{Filename: base}); err != nil {
		// Keep file and metadata consistent: a failed row means no upload.
		os.Remove(filepath.Join(g.dir, base))
		return "", fmt.Errorf("recording image metadata: %w", err)
	}

	g.logger.Info("image stored", "filename", base, "bytes", len(data))
	return base, nil
}

// Get returns the raw bytes of a stored original.
func (g *Gallery) Get(filename string) ([]byte, error) {
	base, err := sanitize(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(g.dir, base))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, base)
	}
	if err != nil {
		return nil, fmt.Errorf("reading image file: %w", err)
	}
	return data, nil
}

// Delete removes an original and its metadata row.
func (g *Gallery) Delete(filename string) error {
	base, err := sanitize(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(g.dir, base)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, base)
		}
		return fmt.Errorf("removing image file: %w", err)
	}
	if err := g.meta.RemoveImage(base); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("removing image metadata: %w", err)
	}
	return nil
}

// FindByBasename resolves an extension-less name ("sunset") to a stored
// filename ("sunset.jpg"). An exact filename passes through unchanged.
func (g *Gallery) FindByBasename(name string) (string, error) {
	images, err := g.List()
	if err != nil {
		return "", err
	}
	for _, img := range images {
		if img.Filename == name {
			return img.Filename, nil
		}
	}
	for _, img := range images {
		stem := strings.TrimSuffix(img.Filename, filepath.Ext(img.Filename))
		if stem == name {
			return img.Filename, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns every stored image with its metadata, in the stable upload
// order the selection policies depend on. Rows whose file has gone missing
// are skipped with a warning.
func (g *Gallery) List() ([]storage.ImageMeta, error) {
	rows, err := g.meta.ListImages()
	if err != nil {
		return nil, fmt.Errorf("listing image metadata: %w", err)
	}

	images := make([]storage.ImageMeta, 0, len(rows))
	for _, m := range rows {
		if _, err := os.Stat(filepath.Join(g.dir, m.Filename)); err != nil {
			g.logger.Warn("metadata row without file", "filename", m.Filename)
			continue
		}
		images = append(images, m)
	}
	return images, nil
}
