package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/staffhub/notifications/internal/domain"
)

const notificationColumns = `id, receiver_id, receiver_type, type, target_id, target_type, actors,
	count, state, aggregation_key, created_at, updated_at, delivered_at, seen_at`

// notificationRow is the storage shape of domain.Notification; actors are kept as a JSON array
type notificationRow struct {
	domain.Notification
	ActorsJSON string `db:"actors"`
}

func (r *notificationRow) toDomain() (*domain.Notification, error) {
	n := r.Notification
	n.Actors = []string{}
	if r.ActorsJSON != "" {
		if err := json.Unmarshal([]byte(r.ActorsJSON), &n.Actors); err != nil {
			return nil, fmt.Errorf("failed to decode actors of notification %d: %w", r.ID, err)
		}
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}

func encodeActors(actors []string) (string, error) {
	if actors == nil {
		actors = []string{}
	}
	b, err := json.Marshal(actors)
	if err != nil {
		return "", fmt.Errorf("failed to encode actors: %w", err)
	}
	return string(b), nil
}

// NotificationRepository handles notification persistence
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// FindOpen finds the open notification for a receiver and aggregation key
func (r *NotificationRepository) FindOpen(ctx context.Context, receiver domain.Receiver, key string) (*domain.Notification, error) {
	query := r.db.Rebind(`
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE receiver_id = ? AND receiver_type = ? AND aggregation_key = ? AND is_open = ?
	`)

	var row notificationRow
	err := r.db.GetContext(ctx, &row, query, receiver.ID, receiver.Type, key, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open notification: %w", err)
	}

	return row.toDomain()
}

// FindByID finds a notification by ID
func (r *NotificationRepository) FindByID(ctx context.Context, id int64) (*domain.Notification, error) {
	query := r.db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`)

	var row notificationRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}

	return row.toDomain()
}

// Create inserts a new open notification. When supersededID is non-zero that
// row is closed in the same transaction; its delivery state is not touched.
// ErrDuplicateOpen is returned if another open row for the key won the race.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification, supersededID int64) error {
	actors, err := encodeActors(n.Actors)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if supersededID != 0 {
		_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE notifications SET is_open = ? WHERE id = ?`), false, supersededID)
		if err != nil {
			return fmt.Errorf("failed to close notification window: %w", err)
		}
	}

	query := tx.Rebind(`
		INSERT INTO notifications (receiver_id, receiver_type, type, target_id, target_type, actors,
		                           count, state, aggregation_key, is_open, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err = tx.QueryRowxContext(ctx, query,
		n.ReceiverID,
		n.ReceiverType,
		n.Type,
		n.TargetID,
		n.TargetType,
		actors,
		n.Count,
		n.State,
		n.AggregationKey,
		true,
		n.CreatedAt.UTC(),
		n.UpdatedAt.UTC(),
	).Scan(&n.ID)
	if isUniqueViolation(err) {
		return ErrDuplicateOpen
	}
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOpen
		}
		return fmt.Errorf("failed to commit notification: %w", err)
	}

	return nil
}

// Fold persists a folded notification. prevCount is the count the caller read;
// if the row moved on since then ErrFoldConflict is returned and nothing changes.
func (r *NotificationRepository) Fold(ctx context.Context, n *domain.Notification, prevCount int) error {
	actors, err := encodeActors(n.Actors)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE notifications
		SET actors = ?, count = ?, state = ?, delivered_at = NULL, updated_at = ?
		WHERE id = ? AND count = ? AND is_open = ?
	`)

	result, err := r.db.ExecContext(ctx, query, actors, n.Count, n.State, n.UpdatedAt.UTC(), n.ID, prevCount, true)
	if err != nil {
		return fmt.Errorf("failed to fold notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFoldConflict
	}

	return nil
}

// List returns a page of notifications for a receiver, newest first
func (r *NotificationRepository) List(ctx context.Context, receiver domain.Receiver, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE receiver_id = ? AND receiver_type = ?`
	args := []any{receiver.ID, receiver.Type}
	if unreadOnly {
		query += ` AND state = ?`
		args = append(args, domain.StateUnread)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*domain.Notification, 0, len(rows))
	for i := range rows {
		n, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, nil
}

// Count returns the number of notifications for a receiver
func (r *NotificationRepository) Count(ctx context.Context, receiver domain.Receiver, unreadOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE receiver_id = ? AND receiver_type = ?`
	args := []any{receiver.ID, receiver.Type}
	if unreadOnly {
		query += ` AND state = ?`
		args = append(args, domain.StateUnread)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// CountUnread returns the live number of unread notifications for a receiver
func (r *NotificationRepository) CountUnread(ctx context.Context, receiver domain.Receiver) (int, error) {
	return r.Count(ctx, receiver, true)
}

// MarkDelivered moves unread rows among ids to delivered. Rows in any other
// state are left alone.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, receiver domain.Receiver, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE notifications
		SET state = ?, delivered_at = ?
		WHERE receiver_id = ? AND receiver_type = ? AND state = ? AND id IN (?)
	`, domain.StateDelivered, at.UTC(), receiver.ID, receiver.Type, domain.StateUnread, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build mark delivered query: %w", err)
	}

	return r.exec(ctx, query, args, "mark notifications delivered")
}

// MarkSeen moves unread or delivered rows among ids to seen
func (r *NotificationRepository) MarkSeen(ctx context.Context, receiver domain.Receiver, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE notifications
		SET state = ?, seen_at = ?
		WHERE receiver_id = ? AND receiver_type = ? AND state <> ? AND id IN (?)
	`, domain.StateSeen, at.UTC(), receiver.ID, receiver.Type, domain.StateSeen, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build mark seen query: %w", err)
	}

	return r.exec(ctx, query, args, "mark notifications seen")
}

// MarkAllSeen moves every non-seen row of the receiver to seen
func (r *NotificationRepository) MarkAllSeen(ctx context.Context, receiver domain.Receiver, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET state = ?, seen_at = ?
		WHERE receiver_id = ? AND receiver_type = ? AND state <> ?
	`
	args := []any{domain.StateSeen, at.UTC(), receiver.ID, receiver.Type, domain.StateSeen}

	return r.exec(ctx, query, args, "mark all notifications seen")
}

func (r *NotificationRepository) exec(ctx context.Context, query string, args []any, what string) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	return result.RowsAffected()
}
