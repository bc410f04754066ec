package storage

import (
	"context"
	"time"
)

// DateLayout is the exact format reminder dates are persisted in
// (DD-MM-YYYY HH:MM). Existing stored data uses this format, so it must not
// change.
const DateLayout = "02-01-2006 15:04"

// Reminder links a chat message to a due date.
// At most one live record exists per message id.
type Reminder struct {
	ChatID    int64  `db:"chat_id" json:"chat_id"`
	MessageID int    `db:"message_id" json:"message_id"`
	Message   string `db:"message" json:"message,omitempty"`
	Caption   string `db:"caption" json:"caption,omitempty"`
	DueAt     string `db:"due_at" json:"due_at"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// Patch mutates selected fields of an existing record.
type Patch struct {
	// NewMessageID re-keys the record (the message was re-posted); 0 keeps
	// the current id.
	NewMessageID int
	// DueAt replaces the due date when non-empty.
	DueAt string
}

func (p Patch) empty() bool { return p.NewMessageID == 0 && p.DueAt == "" }

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "redis":  Redis, one JSON value per reminder
//
// If Driver is empty or "none", storage is disabled and every operation
// degrades to a no-op.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	RedisAddr   string
	RedisDB     int
}

// Store is the reminder persistence API shared by the picker flow (writer on
// commit) and the due scheduler (reader + writer).
type Store interface {
	Insert(ctx context.Context, r Reminder) error
	Update(ctx context.Context, messageID int, p Patch) error
	Delete(ctx context.Context, messageID int) error
	Count(ctx context.Context, messageID int) (int, error)
	List(ctx context.Context) ([]Reminder, error)
	Close() error
}
