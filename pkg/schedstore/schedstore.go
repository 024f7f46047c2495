// Package schedstore persists scheduled posts in SQLite and owns the
// owner-affine handle cache that keeps one open database handle per
// worker. A DB wraps a single SQLite connection and must only ever be
// used by the owner that acquired it; concurrent access from different
// owners goes through separate handles, with SQLite's file-level
// locking serializing writers.
package schedstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Status is the lifecycle state of a scheduled post.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Post is one scheduled post.
type Post struct {
	ID          int64
	Subject     string // owning caller; tenant scoping column
	Body        string
	ScheduledAt time.Time
	Status      Status
	PostedURN   string // upstream post URN once published
	Error       string // failure reason for status=failed
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_posts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    subject      TEXT NOT NULL,
    body         TEXT NOT NULL,
    scheduled_at INTEGER NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    posted_urn   TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scheduled_posts_due
    ON scheduled_posts (status, scheduled_at);

CREATE INDEX IF NOT EXISTS idx_scheduled_posts_subject
    ON scheduled_posts (subject);
`

// DB is one open handle to the scheduled-post database. A DB is not
// safe for concurrent use; the handle cache guarantees each owner its
// own instance.
type DB struct {
	conn *sqlite.Conn
	path string
}

// Open opens (creating if necessary) the scheduled-post database at
// path and applies the schema. The parent directory must exist.
func Open(path string) (*DB, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("schedstore: opening %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("schedstore: %s: %w", pragma, err)
		}
	}

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("schedstore: applying schema: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Path returns the filesystem path this handle was opened for.
func (d *DB) Path() string { return d.path }

// Close closes the underlying connection. After Close the handle must
// not be used.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Schedule inserts a pending post and returns its ID.
func (d *DB) Schedule(ctx context.Context, subject, body string, at time.Time) (int64, error) {
	defer d.interrupt(ctx)()
	now := time.Now().UTC().Unix()
	err := sqlitex.Execute(d.conn, `
		INSERT INTO scheduled_posts (subject, body, scheduled_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{subject, body, at.UTC().Unix(), string(StatusPending), now, now},
		})
	if err != nil {
		return 0, fmt.Errorf("schedstore: inserting post: %w", err)
	}
	return d.conn.LastInsertRowID(), nil
}

// Get returns the post with the given ID scoped to subject.
// Returns ErrNotFound when no such post is visible to the subject.
func (d *DB) Get(ctx context.Context, subject string, id int64) (*Post, error) {
	defer d.interrupt(ctx)()
	var post *Post
	err := sqlitex.Execute(d.conn, `
		SELECT id, subject, body, scheduled_at, status, posted_urn, error, created_at, updated_at
		FROM scheduled_posts WHERE id = ? AND subject = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id, subject},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				post = scanPost(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("schedstore: querying post %d: %w", id, err)
	}
	if post == nil {
		return nil, ErrNotFound
	}
	return post, nil
}

// List returns all posts belonging to subject, newest first.
func (d *DB) List(ctx context.Context, subject string) ([]Post, error) {
	defer d.interrupt(ctx)()
	var posts []Post
	err := sqlitex.Execute(d.conn, `
		SELECT id, subject, body, scheduled_at, status, posted_urn, error, created_at, updated_at
		FROM scheduled_posts WHERE subject = ? ORDER BY scheduled_at DESC`,
		&sqlitex.ExecOptions{
			Args: []any{subject},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				posts = append(posts, *scanPost(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("schedstore: listing posts for %s: %w", subject, err)
	}
	return posts, nil
}

// Cancel marks a pending post cancelled. Posts that already left the
// pending state are not touched; ErrNotFound is returned in that case.
func (d *DB) Cancel(ctx context.Context, subject string, id int64) error {
	defer d.interrupt(ctx)()
	err := sqlitex.Execute(d.conn, `
		UPDATE scheduled_posts SET status = ?, updated_at = ?
		WHERE id = ? AND subject = ? AND status = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(StatusCancelled), time.Now().UTC().Unix(), id, subject, string(StatusPending)},
		})
	if err != nil {
		return fmt.Errorf("schedstore: cancelling post %d: %w", id, err)
	}
	if d.conn.Changes() == 0 {
		return ErrNotFound
	}
	return nil
}

// Due returns pending posts whose scheduled time is at or before now,
// across all subjects, oldest first. Used by the publisher daemon.
func (d *DB) Due(ctx context.Context, now time.Time) ([]Post, error) {
	defer d.interrupt(ctx)()
	var posts []Post
	err := sqlitex.Execute(d.conn, `
		SELECT id, subject, body, scheduled_at, status, posted_urn, error, created_at, updated_at
		FROM scheduled_posts WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`,
		&sqlitex.ExecOptions{
			Args: []any{string(StatusPending), now.UTC().Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				posts = append(posts, *scanPost(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("schedstore: querying due posts: %w", err)
	}
	return posts, nil
}

// MarkPublished records a successful publication.
func (d *DB) MarkPublished(ctx context.Context, id int64, urn string) error {
	defer d.interrupt(ctx)()
	err := sqlitex.Execute(d.conn, `
		UPDATE scheduled_posts SET status = ?, posted_urn = ?, updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(StatusPublished), urn, time.Now().UTC().Unix(), id},
		})
	if err != nil {
		return fmt.Errorf("schedstore: marking post %d published: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed publication attempt with its reason.
func (d *DB) MarkFailed(ctx context.Context, id int64, reason string) error {
	defer d.interrupt(ctx)()
	err := sqlitex.Execute(d.conn, `
		UPDATE scheduled_posts SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(StatusFailed), reason, time.Now().UTC().Unix(), id},
		})
	if err != nil {
		return fmt.Errorf("schedstore: marking post %d failed: %w", id, err)
	}
	return nil
}

// interrupt ties the connection to ctx for the duration of one call.
func (d *DB) interrupt(ctx context.Context) func() {
	prev := d.conn.SetInterrupt(ctx.Done())
	return func() { d.conn.SetInterrupt(prev) }
}

// scanPost reads one scheduled_posts row.
func scanPost(stmt *sqlite.Stmt) *Post {
	return &Post{
		ID:          stmt.ColumnInt64(0),
		Subject:     stmt.ColumnText(1),
		Body:        stmt.ColumnText(2),
		ScheduledAt: time.Unix(stmt.ColumnInt64(3), 0).UTC(),
		Status:      Status(stmt.ColumnText(4)),
		PostedURN:   stmt.ColumnText(5),
		Error:       stmt.ColumnText(6),
		CreatedAt:   time.Unix(stmt.ColumnInt64(7), 0).UTC(),
		UpdatedAt:   time.Unix(stmt.ColumnInt64(8), 0).UTC(),
	}
}

// DefaultPath resolves the default database path: TERMIN_DATA_DIR (or
// ./data) joined with scheduled_posts.db.
func DefaultPath() string {
	dir := os.Getenv("TERMIN_DATA_DIR")
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, "scheduled_posts.db")
}
