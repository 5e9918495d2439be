package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatpick/internal/model"
	"chatpick/internal/util"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps synced message metadata and answers peer and topic
// searches from it. It satisfies gmail.MessageStore and both search
// interfaces, which is what offline mode runs on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Sync writes while the picker reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Peers and topics are views over messages. Bare columns next to MAX() take
// their values from the newest row of each group.
func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	thread_id     TEXT NOT NULL,
	from_email    TEXT NOT NULL,
	from_name     TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	snippet       TEXT NOT NULL DEFAULT '',
	internal_date INTEGER NOT NULL DEFAULT 0,
	unread        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_email);

CREATE TABLE IF NOT EXISTS message_labels (
	message_id TEXT NOT NULL,
	label      TEXT NOT NULL,
	PRIMARY KEY (message_id, label)
);
CREATE INDEX IF NOT EXISTS idx_message_labels_label ON message_labels(label);

CREATE TABLE IF NOT EXISTS labels (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE VIEW IF NOT EXISTS peers AS
SELECT from_email         AS id,
       from_name          AS name,
       MAX(internal_date) AS last_active,
       COUNT(*)           AS message_count,
       SUM(unread)        AS unread
FROM messages
GROUP BY from_email;

CREATE VIEW IF NOT EXISTS topics AS
SELECT l.label              AS forum,
       m.thread_id          AS id,
       m.subject            AS title,
       m.snippet            AS preview,
       m.id                 AS last_message_id,
       MAX(m.internal_date) AS last_date,
       COUNT(*)             AS message_count,
       SUM(m.unread)        AS unread
FROM messages m
JOIN message_labels l ON l.message_id = m.id
GROUP BY l.label, m.thread_id;
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertMessages(ctx context.Context, msgs []model.MessageRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, thread_id, from_email, from_name, subject, snippet, internal_date, unread)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id     = excluded.thread_id,
			from_email    = excluded.from_email,
			from_name     = excluded.from_name,
			subject       = excluded.subject,
			snippet       = excluded.snippet,
			internal_date = excluded.internal_date,
			unread        = excluded.unread
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	clearLabels, err := tx.PrepareContext(ctx, "DELETE FROM message_labels WHERE message_id = ?")
	if err != nil {
		return err
	}
	defer clearLabels.Close()

	addLabel, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO message_labels (message_id, label) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer addLabel.Close()

	for _, m := range msgs {
		unread := 0
		if m.Unread {
			unread = 1
		}
		_, err := stmt.ExecContext(ctx, m.ID, m.ThreadID, m.From, m.FromName, m.Subject, m.Snippet, m.Date.Unix(), unread)
		if err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
		if _, err := clearLabels.ExecContext(ctx, m.ID); err != nil {
			return err
		}
		for _, l := range m.Labels {
			if _, err := addLabel.ExecContext(ctx, m.ID, l); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM messages WHERE id = ?",
		"DELETE FROM message_labels WHERE message_id = ?",
	} {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				stmt.Close()
				return err
			}
		}
		stmt.Close()
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountMessages(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

func (s *SQLiteStore) GetLastHistoryID(ctx context.Context) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'last_history_id'").Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return val, err
}

func (s *SQLiteStore) SetLastHistoryID(ctx context.Context, historyID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('last_history_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, historyID)
	return err
}

// UpsertForums records display names for labels.
func (s *SQLiteStore) UpsertForums(ctx context.Context, forums []model.Forum) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO labels (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range forums {
		if _, err := stmt.ExecContext(ctx, f.ID, f.Name); err != nil {
			return fmt.Errorf("upsert forum %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// ListForums returns every label that has topics, with its topic count.
func (s *SQLiteStore) ListForums(ctx context.Context) ([]model.Forum, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.forum, COALESCE(NULLIF(l.name, ''), t.forum), COUNT(*)
		FROM topics t
		LEFT JOIN labels l ON l.id = t.forum
		GROUP BY t.forum
		ORDER BY t.forum
	`)
	if err != nil {
		return nil, fmt.Errorf("list forums: %w", err)
	}
	defer rows.Close()

	var forums []model.Forum
	for rows.Next() {
		var f model.Forum
		if err := rows.Scan(&f.ID, &f.Name, &f.Topics); err != nil {
			return nil, err
		}
		forums = append(forums, f)
	}
	return forums, rows.Err()
}

const peerColumns = "id, name, last_active, message_count, unread"

// ListPeers returns the most recently active peers.
func (s *SQLiteStore) ListPeers(ctx context.Context, limit int) ([]model.Peer, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.queryPeers(ctx,
		"SELECT "+peerColumns+" FROM peers ORDER BY last_active DESC, id LIMIT ?", limit)
}

// GetPeersByIDs returns the known peers among ids.
func (s *SQLiteStore) GetPeersByIDs(ctx context.Context, ids []string) ([]model.Peer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := "SELECT " + peerColumns + " FROM peers WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	return s.queryPeers(ctx, query, args...)
}

// SearchPeers matches query against peer names and addresses. Every hit is a
// peer the user already has, so all of them are MyResults.
func (s *SQLiteStore) SearchPeers(ctx context.Context, query string, limit int) (model.Found, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := likePattern(query)
	peers, err := s.queryPeers(ctx, `
		SELECT `+peerColumns+` FROM peers
		WHERE name LIKE ? ESCAPE '\' OR id LIKE ? ESCAPE '\'
		ORDER BY last_active DESC, id
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return model.Found{}, fmt.Errorf("search peers: %w", err)
	}
	return model.Found{MyResults: peers}, nil
}

func (s *SQLiteStore) queryPeers(ctx context.Context, query string, args ...any) ([]model.Peer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []model.Peer
	for rows.Next() {
		var (
			p    model.Peer
			last int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &last, &p.MessageCount, &p.Unread); err != nil {
			return nil, err
		}
		p.Email = p.ID
		p.LastActive = time.Unix(last, 0).UTC()
		p.Kind = util.SenderKind(p.ID)
		if p.Name == "" {
			p.Name = util.DisplayName("", p.ID)
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// SearchTopics returns one page of topics in forum whose title or preview
// contains query, newest first, strictly after cursor. An empty query lists
// the whole forum.
func (s *SQLiteStore) SearchTopics(ctx context.Context, forum, query string, cursor model.TopicCursor, limit int) ([]model.Topic, error) {
	if limit <= 0 {
		limit = 50
	}
	where := []string{"forum = ?"}
	args := []any{forum}

	if query != "" {
		pattern := likePattern(query)
		where = append(where, `(title LIKE ? ESCAPE '\' OR preview LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	if !cursor.IsZero() {
		where = append(where, `(last_date < ?
			OR (last_date = ? AND last_message_id < ?)
			OR (last_date = ? AND last_message_id = ? AND id < ?))`)
		args = append(args,
			cursor.OffsetDate,
			cursor.OffsetDate, cursor.OffsetID,
			cursor.OffsetDate, cursor.OffsetID, cursor.OffsetTopicID)
	}

	q := `SELECT forum, id, title, preview, last_message_id, last_date, message_count, unread
		FROM topics WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY last_date DESC, last_message_id DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search topics: %w", err)
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		var (
			t    model.Topic
			last int64
		)
		if err := rows.Scan(&t.Forum, &t.ID, &t.Title, &t.Preview, &t.LastMessageID, &last, &t.MessageCount, &t.Unread); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.LastDate = time.Unix(last, 0).UTC()
		t.Title = util.TopicTitle(t.Title)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}
