package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bryan-buckman/instapress/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		caption TEXT DEFAULT '',
		media_type TEXT NOT NULL,
		permalink TEXT DEFAULT '',
		timestamp TEXT DEFAULT '',
		posted_to_wp INTEGER DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS media (
		media_id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id),
		media_type TEXT NOT NULL,
		media_url TEXT DEFAULT '',
		local_path TEXT DEFAULT '',
		wp_media_id INTEGER,
		wp_url TEXT
	);
	CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Post Methods ---

// ExistingPostIDs returns the set of post IDs already stored.
func (db *DB) ExistingPostIDs() (map[string]struct{}, error) {
	rows, err := db.conn.Query("SELECT id FROM posts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// AddPost inserts a post if its ID doesn't exist yet. Returns whether it was new.
// The delivery flag always starts false; re-inserting an existing ID is a no-op,
// which makes re-running ingestion after a partial failure safe.
func (db *DB) AddPost(post *model.Post) (bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO posts (id, caption, media_type, permalink, timestamp, posted_to_wp)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO NOTHING`,
		post.ID, post.Caption, post.MediaType, post.Permalink, post.Timestamp)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// GetPost returns a single post by ID, or nil if absent.
func (db *DB) GetPost(postID string) (*model.Post, error) {
	var p model.Post
	err := db.conn.QueryRow(
		"SELECT id, caption, media_type, permalink, timestamp, posted_to_wp FROM posts WHERE id = ?",
		postID).Scan(&p.ID, &p.Caption, &p.MediaType, &p.Permalink, &p.Timestamp, &p.Posted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PendingPosts returns posts not yet published to WordPress, oldest first.
func (db *DB) PendingPosts() ([]model.Post, error) {
	rows, err := db.conn.Query(
		"SELECT id, caption, media_type, permalink, timestamp, posted_to_wp FROM posts WHERE posted_to_wp = 0 ORDER BY timestamp")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []model.Post
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.Caption, &p.MediaType, &p.Permalink, &p.Timestamp, &p.Posted); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// MarkPostPublished flips a post's delivery flag to true.
func (db *DB) MarkPostPublished(postID string) error {
	_, err := db.conn.Exec("UPDATE posts SET posted_to_wp = 1 WHERE id = ?", postID)
	return err
}

// --- Media Methods ---

// AddMedia inserts a media record if its ID doesn't exist yet. Returns whether it was new.
func (db *DB) AddMedia(media *model.Media) (bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO media (media_id, post_id, media_type, media_url, local_path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(media_id) DO NOTHING`,
		media.ID, media.PostID, media.MediaType, media.MediaURL, media.LocalPath)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// MediaForPost returns all media for a post in insertion order (the source's
// original list order), including any cached WordPress upload.
func (db *DB) MediaForPost(postID string) ([]model.Media, error) {
	rows, err := db.conn.Query(
		"SELECT media_id, post_id, media_type, media_url, local_path, wp_media_id, wp_url FROM media WHERE post_id = ? ORDER BY rowid",
		postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.Media
	for rows.Next() {
		var m model.Media
		var wpID sql.NullInt64
		var wpURL sql.NullString
		if err := rows.Scan(&m.ID, &m.PostID, &m.MediaType, &m.MediaURL, &m.LocalPath, &wpID, &wpURL); err != nil {
			return nil, err
		}
		if wpID.Valid {
			m.WPMediaID = wpID.Int64
		}
		if wpURL.Valid {
			m.WPURL = wpURL.String
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// SetMediaUpload records the WordPress id and URL for an uploaded media asset.
// Once set it is treated as a cache and reused on subsequent runs.
func (db *DB) SetMediaUpload(mediaID string, wpMediaID int64, wpURL string) error {
	_, err := db.conn.Exec("UPDATE media SET wp_media_id = ?, wp_url = ? WHERE media_id = ?",
		wpMediaID, wpURL, mediaID)
	return err
}

// ResetMediaUploads clears every media upload cache, forcing re-upload on the
// next publish pass. Delivery flags are untouched.
func (db *DB) ResetMediaUploads() (int64, error) {
	res, err := db.conn.Exec("UPDATE media SET wp_media_id = NULL, wp_url = NULL")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Credential Methods ---

// GetCredential retrieves a credential value and its update time.
// Returns an empty value and zero time when the key is absent.
func (db *DB) GetCredential(key string) (string, time.Time, error) {
	var value string
	var updatedAt time.Time
	err := db.conn.QueryRow("SELECT value, updated_at FROM credentials WHERE key = ?", key).
		Scan(&value, &updatedAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return value, updatedAt, nil
}

// SetCredential saves a credential value, overwriting any previous one.
func (db *DB) SetCredential(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}
