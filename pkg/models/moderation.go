package models

import "time"

// Action is a moderation action recorded in the audit log.
type Action string

const (
	ActionMute   Action = "mute"
	ActionBan    Action = "ban"
	ActionUnban  Action = "unban"
	ActionUnmute Action = "unmute"
)

// ChatRecord represents a chat the bot has been added to
type ChatRecord struct {
	ChatID    int64     `json:"chat_id" db:"chat_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserActivity represents per-(user, chat) message accounting
type UserActivity struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	ChatID       int64     `json:"chat_id" db:"chat_id"`
	Username     *string   `json:"username" db:"username"`
	MessageCount int64     `json:"message_count" db:"message_count"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AuditEntry represents a single moderation action. UserID is the target of
// the action, IssuedBy the admin who ran the command. Entries are append-only.
type AuditEntry struct {
	LogID     int64     `json:"log_id" db:"log_id"`
	ChatID    int64     `json:"chat_id" db:"chat_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	IssuedBy  int64     `json:"issued_by" db:"issued_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Action    Action    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
}

// Recipient is a broadcast delivery target
type Recipient struct {
	UserID int64 `json:"user_id" db:"user_id"`
	ChatID int64 `json:"chat_id" db:"chat_id"`
}
