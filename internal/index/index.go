// Package index keeps message headers and tags in a local SQLite database
// and serves them as a mailstore.Store.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	indexed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS headers (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (message_id, name)
);
CREATE TABLE IF NOT EXISTS tags (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	PRIMARY KEY (message_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);
`

// ErrReadOnly is returned by mutations on an index opened read-only.
var ErrReadOnly = errors.New("index opened read-only")

// Index is a SQLite-backed mailstore.Store.
type Index struct {
	db       *sql.DB
	readOnly bool
}

// Options configures Open.
type Options struct {
	// ReadOnly opens an existing database without write access.
	ReadOnly bool
	Logger   *slog.Logger
}

// Open opens the index at path, creating it unless opts.ReadOnly is set.
func Open(ctx context.Context, path string, opts Options) (*Index, error) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return nil, errors.New("index path cannot be empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := "file:" + path
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open index read-only: %w", err)
		}
		dsn += "?mode=ro"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure index: %w", err)
	}
	if !opts.ReadOnly {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("create index schema: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("index ping failed: %w", err)
	}
	logger.DebugContext(ctx, "index opened", slog.String("path", path), slog.Bool("read_only", opts.ReadOnly))
	return &Index{db: db, readOnly: opts.ReadOnly}, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Search returns the IDs matching q in indexing order.
func (x *Index) Search(ctx context.Context, q mailstore.Query) ([]mailstore.MessageID, error) {
	terms, err := mailstore.ParseQuery(q.Raw)
	if err != nil {
		return nil, err
	}
	where, args := whereClause(terms)
	rows, err := x.db.QueryContext(ctx, `SELECT m.id FROM messages m WHERE `+where+` ORDER BY m.rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var ids []mailstore.MessageID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, mailstore.MessageID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return ids, nil
}

// whereClause renders terms as a SQL condition on messages m. Header terms
// are case-insensitive substring matches, like mailstore.Match.
func whereClause(terms []mailstore.Term) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, t := range terms {
		var cond string
		switch t.Kind {
		case mailstore.TermAll:
			cond = "1 = 1"
		case mailstore.TermTag:
			cond = "EXISTS (SELECT 1 FROM tags t WHERE t.message_id = m.id AND t.tag = ?)"
			args = append(args, t.Value)
		case mailstore.TermID:
			cond = "m.id = ?"
			args = append(args, t.Value)
		default:
			cond = "EXISTS (SELECT 1 FROM headers h WHERE h.message_id = m.id AND h.name = ? AND instr(lower(h.value), lower(?)) > 0)"
			args = append(args, t.Kind.Header(), t.Value)
		}
		if t.Negated {
			cond = "NOT " + cond
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Get loads the headers and tags of a message.
func (x *Index) Get(ctx context.Context, id mailstore.MessageID) (mailstore.Message, error) {
	var path string
	err := x.db.QueryRowContext(ctx, `SELECT path FROM messages WHERE id = ?`, string(id)).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return mailstore.Message{}, fmt.Errorf("%s: %w", id, mailstore.ErrNotFound)
	}
	if err != nil {
		return mailstore.Message{}, fmt.Errorf("load message %s: %w", id, err)
	}

	headers := map[string]string{}
	hrows, err := x.db.QueryContext(ctx, `SELECT name, value FROM headers WHERE message_id = ?`, string(id))
	if err != nil {
		return mailstore.Message{}, fmt.Errorf("load headers %s: %w", id, err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var name, value string
		if err := hrows.Scan(&name, &value); err != nil {
			return mailstore.Message{}, fmt.Errorf("scan header: %w", err)
		}
		headers[name] = value
	}
	if err := hrows.Err(); err != nil {
		return mailstore.Message{}, fmt.Errorf("load headers %s: %w", id, err)
	}

	tags, err := x.tags(ctx, id)
	if err != nil {
		return mailstore.Message{}, err
	}
	return mailstore.NewMessage(id, headers, tags), nil
}

func (x *Index) tags(ctx context.Context, id mailstore.MessageID) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT tag FROM tags WHERE message_id = ? ORDER BY tag`, string(id))
	if err != nil {
		return nil, fmt.Errorf("load tags %s: %w", id, err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load tags %s: %w", id, err)
	}
	return tags, nil
}

// AddTag tags a message. Adding a present tag is a no-op.
func (x *Index) AddTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	if x.readOnly {
		return ErrReadOnly
	}
	res, err := x.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (message_id, tag) SELECT id, ? FROM messages WHERE id = ?`,
		tag, string(id))
	if err != nil {
		return fmt.Errorf("add tag %q to %s: %w", tag, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return x.ensureExists(ctx, id)
	}
	return nil
}

// RemoveTag untags a message. Removing an absent tag is a no-op.
func (x *Index) RemoveTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	if x.readOnly {
		return ErrReadOnly
	}
	res, err := x.db.ExecContext(ctx, `DELETE FROM tags WHERE message_id = ? AND tag = ?`, string(id), tag)
	if err != nil {
		return fmt.Errorf("remove tag %q from %s: %w", tag, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return x.ensureExists(ctx, id)
	}
	return nil
}

func (x *Index) ensureExists(ctx context.Context, id mailstore.MessageID) error {
	var one int
	err := x.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, mailstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("look up %s: %w", id, err)
	}
	return nil
}

// Put records a message found at path. It reports false, leaving the stored
// message untouched, when the ID is already indexed.
func (x *Index) Put(ctx context.Context, msg mailstore.Message, path string) (bool, error) {
	if x.readOnly {
		return false, ErrReadOnly
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, path, indexed_at) VALUES (?, ?, ?)`,
		string(msg.ID), path, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	for name, value := range msg.Headers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO headers (message_id, name, value) VALUES (?, ?, ?)`,
			string(msg.ID), name, value); err != nil {
			return false, fmt.Errorf("insert header %s of %s: %w", name, msg.ID, err)
		}
	}
	for _, tag := range msg.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (message_id, tag) VALUES (?, ?)`,
			string(msg.ID), tag); err != nil {
			return false, fmt.Errorf("insert tag %s of %s: %w", tag, msg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit put %s: %w", msg.ID, err)
	}
	return true, nil
}

// Count returns the number of indexed messages.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

var _ mailstore.Store = (*Index)(nil)
