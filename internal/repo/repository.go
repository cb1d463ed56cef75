package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/intenise/sentry/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new repository instance
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Chats operations

// EnsureChat registers a chat the first time the bot sees it. Returns true
// when the row was created by this call.
func (r *Repository) EnsureChat(ctx context.Context, chatID int64, title string) (bool, error) {
	query := `
		INSERT INTO chats (chat_id, title, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, chatID, title, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to ensure chat: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CountChats(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chats: %w", err)
	}
	return count, nil
}

// User activity operations

// RecordMessage bumps the message counter for a (user, chat) pair. The
// increment is a single upsert statement so concurrent messages from the same
// pair never lose an update. Username is refreshed when present.
func (r *Repository) RecordMessage(ctx context.Context, chatID, userID int64, username *string) error {
	query := `
		INSERT INTO user_activity (user_id, chat_id, username, message_count, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_id, chat_id)
		DO UPDATE SET
			message_count = user_activity.message_count + 1,
			username = COALESCE(EXCLUDED.username, user_activity.username),
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query, userID, chatID, username, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}

	return nil
}

// FindUserIDByUsername resolves a @handle through the last-seen username of a
// chat member. Returns found=false when no activity row matches.
func (r *Repository) FindUserIDByUsername(ctx context.Context, chatID int64, username string) (int64, bool, error) {
	query := `
		SELECT user_id
		FROM user_activity
		WHERE chat_id = $1 AND lower(username) = lower($2)
		ORDER BY updated_at DESC
		LIMIT 1`

	var userID int64
	err := r.pool.QueryRow(ctx, query, chatID, username).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to resolve username: %w", err)
	}

	return userID, true, nil
}

// TopUsers returns activity rows for a chat ordered by message count descending
func (r *Repository) TopUsers(ctx context.Context, chatID int64, limit int) ([]*models.UserActivity, error) {
	query := `
		SELECT user_id, chat_id, username, message_count, updated_at
		FROM user_activity
		WHERE chat_id = $1
		ORDER BY message_count DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*models.UserActivity
	for rows.Next() {
		ua := &models.UserActivity{}
		if err := rows.Scan(&ua.UserID, &ua.ChatID, &ua.Username, &ua.MessageCount, &ua.UpdatedAt); err != nil {
			return nil, err
		}
		stats = append(stats, ua)
	}

	return stats, rows.Err()
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_activity`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Recipients returns every known (user, chat) pair for broadcast fan-out
func (r *Repository) Recipients(ctx context.Context) ([]models.Recipient, error) {
	query := `SELECT user_id, chat_id FROM user_activity`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var rec models.Recipient
		if err := rows.Scan(&rec.UserID, &rec.ChatID); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, rec)
	}

	return recipients, rows.Err()
}

// Audit log operations

// AppendAudit inserts an audit entry. Entries are insert-only; the timestamp
// is assigned at call time unless already set.
func (r *Repository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (chat_id, user_id, issued_by, created_at, action, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING log_id`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	return r.pool.QueryRow(ctx, query, entry.ChatID, entry.UserID, entry.IssuedBy, entry.CreatedAt, entry.Action, entry.Details).Scan(&entry.LogID)
}

// RecentAudit returns the newest audit entries for a chat, capped at limit.
// Order is timestamp descending with log_id as tie-break.
func (r *Repository) RecentAudit(ctx context.Context, chatID int64, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT log_id, chat_id, user_id, issued_by, created_at, action, details
		FROM audit_log
		WHERE chat_id = $1
		ORDER BY created_at DESC, log_id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		if err := rows.Scan(&e.LogID, &e.ChatID, &e.UserID, &e.IssuedBy, &e.CreatedAt, &e.Action, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
