package storage

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	logx "nagbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./nagbot.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("sqlite storage ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Insert(ctx context.Context, r Reminder) error {
	// message_id keys the record; a second insert for the same id just
	// refreshes the due date.
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO reminders (chat_id, message_id, message, caption, due_at, created_at)
		 VALUES (:chat_id, :message_id, :message, :caption, :due_at, :created_at)
		 ON CONFLICT(message_id) DO UPDATE SET due_at = excluded.due_at`,
		r,
	)
	return err
}

func (s *sqliteStore) Update(ctx context.Context, messageID int, p Patch) error {
	switch {
	case p.empty():
		return nil
	case p.NewMessageID != 0 && p.DueAt != "":
		_, err := s.db.ExecContext(ctx,
			`UPDATE reminders SET message_id = ?, due_at = ? WHERE message_id = ?`,
			p.NewMessageID, p.DueAt, messageID)
		return err
	case p.NewMessageID != 0:
		_, err := s.db.ExecContext(ctx,
			`UPDATE reminders SET message_id = ? WHERE message_id = ?`,
			p.NewMessageID, messageID)
		return err
	default:
		_, err := s.db.ExecContext(ctx,
			`UPDATE reminders SET due_at = ? WHERE message_id = ?`,
			p.DueAt, messageID)
		return err
	}
}

func (s *sqliteStore) Delete(ctx context.Context, messageID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE message_id = ?`, messageID)
	return err
}

func (s *sqliteStore) Count(ctx context.Context, messageID int) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reminders WHERE message_id = ?`, messageID)
	return n, err
}

func (s *sqliteStore) List(ctx context.Context) ([]Reminder, error) {
	var out []Reminder
	err := s.db.SelectContext(ctx, &out,
		`SELECT chat_id, message_id, message, caption, due_at, created_at FROM reminders`)
	return out, err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
