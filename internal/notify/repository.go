package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// Repository is the pgx-backed notification store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.NotificationRepository = (*Repository)(nil)

// Create inserts a notification.
func (r *Repository) Create(ctx context.Context, n *contracts.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, run_id, category, priority, title, message, is_read, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		n.ID, n.UserID, n.RunID, string(n.Category), string(n.Priority),
		n.Title, n.Message, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*contracts.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, COALESCE(run_id, ''), category, priority, title, message, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = false OR is_read = false)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Notification
	for rows.Next() {
		n := &contracts.Notification{}
		var category, priority string
		if err := rows.Scan(&n.ID, &n.UserID, &n.RunID, &category, &priority,
			&n.Title, &n.Message, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Category = contracts.NotificationCategory(category)
		n.Priority = contracts.NotificationPriority(priority)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks one notification as read.
func (r *Repository) MarkRead(ctx context.Context, userID, id string) error {
	query := `
		UPDATE notifications SET is_read = true, read_at = $1
		WHERE id = $2 AND user_id = $3 AND is_read = false
	`
	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s not found or already read", id)
	}
	return nil
}

// PruneRead deletes read notifications older than the retention window.
func (r *Repository) PruneRead(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE is_read = true AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkAllRead marks every unread notification for a user as read.
func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE notifications SET is_read = true, read_at = $1
		WHERE user_id = $2 AND is_read = false
	`
	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
