package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	room_id   TEXT NOT NULL,
	sender_id TEXT NOT NULL DEFAULT '',
	nickname  TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL,
	content   TEXT NOT NULL,
	sent_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages (room_id, sent_at);
`

type sqliteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the sqlite-backed message store.
func OpenSQLite(path string, logger *slog.Logger) (MessageStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	return &sqliteStore{db: db, logger: logger}, nil
}

func (s *sqliteStore) SaveMessages(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO messages (id, room_id, sender_id, nickname, kind, content, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		content, err := encodeContent(m.Content)
		if err != nil {
			s.logger.Warn("skip unencodable message", "id", m.ID, "error", err)
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID.String(), m.RoomID, m.SenderID, m.Nickname,
			m.Kind.String(), content, m.SentAt.UnixNano()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetMessages(ctx context.Context, roomID string, before time.Time, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().Add(time.Hour).UnixNano()
	if !before.IsZero() {
		cutoff = before.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, nickname, kind, content, sent_at
		 FROM messages WHERE room_id = ? AND sent_at < ?
		 ORDER BY sent_at DESC LIMIT ?`, roomID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var (
			id, room, sender, nick, kind, content string
			sentAt                                int64
		)
		if err := rows.Scan(&id, &room, &sender, &nick, &kind, &content, &sentAt); err != nil {
			return nil, err
		}
		m, err := decodeRow(id, room, sender, nick, kind, content, sentAt)
		if err != nil {
			s.logger.Warn("skip undecodable row", "id", id, "error", err)
			continue
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers expect oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func encodeContent(content any) (string, error) {
	if s, ok := content.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRow(id, room, sender, nick, kind, content string, sentAt int64) (*model.Message, error) {
	mid, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	k, err := model.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return &model.Message{
		ID:       mid,
		RoomID:   room,
		SenderID: sender,
		Nickname: nick,
		Kind:     k,
		Content:  content,
		SentAt:   time.Unix(0, sentAt),
	}, nil
}
