package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding image metadata and tags.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "inkframe.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Tag links must go away with their image.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Images ---

func (s *Store) AddImage(m ImageMeta) error {
	uploadedAt := m.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO images (filename, title, description, uploaded_at)
		VALUES (?, ?, ?, ?)`,
		m.Filename, m.Title, m.Description, uploadedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RemoveImage deletes an image row; tag links cascade.
func (s *Store) RemoveImage(filename string) error {
	res, err := s.db.Exec(`DELETE FROM images WHERE filename = ?`, filename)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetImageMeta(filename string) (ImageMeta, error) {
	var m ImageMeta
	var uploadedAt string
	err := s.db.QueryRow(`
		SELECT filename, title, description, uploaded_at
		FROM images WHERE filename = ?`, filename,
	).Scan(&m.Filename, &m.Title, &m.Description, &uploadedAt)
	if err == sql.ErrNoRows {
		return ImageMeta{}, ErrNotFound
	}
	if err != nil {
		return ImageMeta{}, err
	}
	t, err := time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return ImageMeta{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	m.UploadedAt = t

	tags, err := s.imageTags(filename)
	if err != nil {
		return ImageMeta{}, err
	}
	m.Tags = tags
	return m, nil
}

// UpdateImageMeta sets title and/or description. Nil pointers leave the field unchanged.
func (s *Store) UpdateImageMeta(filename string, title, description *string) error {
	if title == nil && description == nil {
		return nil
	}

	var sets []string
	var args []any
	if title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *title)
	}
	if description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *description)
	}
	args = append(args, filename)

	res, err := s.db.Exec(`UPDATE images SET `+strings.Join(sets, ", ")+` WHERE filename = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListImages returns all image rows with their tags in a stable order
// (uploaded_at, then filename). Selection policies rely on this ordering.
func (s *Store) ListImages() ([]ImageMeta, error) {
	rows, err := s.db.Query(`
		SELECT filename, title, description, uploaded_at
		FROM images ORDER BY uploaded_at ASC, filename ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImageMeta
	for rows.Next() {
		var m ImageMeta
		var uploadedAt string
		if err := rows.Scan(&m.Filename, &m.Title, &m.Description, &uploadedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, uploadedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing uploaded_at: %w", err)
		}
		m.UploadedAt = t
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		tags, err := s.imageTags(results[i].Filename)
		if err != nil {
			return nil, err
		}
		results[i].Tags = tags
	}
	return results, nil
}

// --- Tags ---

// AddImageTag attaches a tag to an image, creating the tag row if needed.
// Tag names are lowercased before storage.
func (s *Store) AddImageTag(filename, tag string) error {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return fmt.Errorf("empty tag name")
	}

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM images WHERE filename = ?`, filename).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning tag transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, tag); err != nil {
		return err
	}

	var tagID int64
	if err := tx.QueryRow(`SELECT id FROM tags WHERE name = ?`, tag).Scan(&tagID); err != nil {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO image_tags (filename, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, filename, tagID); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveImageTag detaches a tag from an image. Orphaned tag rows are pruned.
func (s *Store) RemoveImageTag(filename, tag string) error {
	tag = strings.ToLower(strings.TrimSpace(tag))

	res, err := s.db.Exec(`
		DELETE FROM image_tags WHERE filename = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)`,
		filename, tag,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	_, err = s.db.Exec(`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM image_tags)`)
	return err
}

// AllTags returns every tag with its usage count, sorted by name.
func (s *Store) AllTags() ([]TagCount, error) {
	rows, err := s.db.Query(`
		SELECT t.name, COUNT(it.filename)
		FROM tags t
		LEFT JOIN image_tags it ON it.tag_id = t.id
		GROUP BY t.id
		ORDER BY t.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		results = append(results, tc)
	}
	return results, rows.Err()
}

func (s *Store) imageTags(filename string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT t.name FROM tags t
		JOIN image_tags it ON it.tag_id = t.id
		WHERE it.filename = ?
		ORDER BY t.name ASC`, filename)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}
