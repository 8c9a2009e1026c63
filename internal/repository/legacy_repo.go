package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/staffhub/notifications/internal/domain"
)

// LegacyRepository reads and compacts the one-row-per-event notification table
type LegacyRepository struct {
	db *sqlx.DB
}

// NewLegacyRepository creates a new legacy notification repository
func NewLegacyRepository(db *sqlx.DB) *LegacyRepository {
	return &LegacyRepository{db: db}
}

type legacyRow struct {
	domain.LegacyNotification
	ActorsJSON string `db:"actor_usernames"`
}

// ListReceivers returns every receiver id that has legacy rows
func (r *LegacyRepository) ListReceivers(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT receiver_id FROM legacy_notifications ORDER BY receiver_id`); err != nil {
		return nil, fmt.Errorf("failed to list legacy receivers: %w", err)
	}
	return ids, nil
}

// ListByReceiver returns the legacy rows of a receiver in insertion order
func (r *LegacyRepository) ListByReceiver(ctx context.Context, receiverID string) ([]domain.LegacyNotification, error) {
	query := r.db.Rebind(`
		SELECT id, receiver_id, target_id, type, content, actor_usernames, is_read, created_at
		FROM legacy_notifications
		WHERE receiver_id = ?
		ORDER BY id ASC
	`)

	var rows []legacyRow
	if err := r.db.SelectContext(ctx, &rows, query, receiverID); err != nil {
		return nil, fmt.Errorf("failed to list legacy notifications: %w", err)
	}

	out := make([]domain.LegacyNotification, 0, len(rows))
	for _, row := range rows {
		n := row.LegacyNotification
		if row.ActorsJSON != "" {
			if err := json.Unmarshal([]byte(row.ActorsJSON), &n.ActorUsernames); err != nil {
				return nil, fmt.Errorf("failed to decode actors of legacy notification %d: %w", n.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, nil
}

// Insert adds a legacy row. Only used to seed and test compaction.
func (r *LegacyRepository) Insert(ctx context.Context, n *domain.LegacyNotification) error {
	actors, err := encodeActors(n.ActorUsernames)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		INSERT INTO legacy_notifications (receiver_id, target_id, type, content, actor_usernames, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err = r.db.QueryRowxContext(ctx, query,
		n.ReceiverID, n.TargetID, n.Type, n.Content, actors, n.IsRead, n.CreatedAt.UTC(),
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to insert legacy notification: %w", err)
	}
	return nil
}

// ApplyBundle rewrites the surviving rows with their merged actors and read
// flag and deletes the redundant rows, atomically.
func (r *LegacyRepository) ApplyBundle(ctx context.Context, survivors []domain.BundledNotification, deleteIDs []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := tx.Rebind(`UPDATE legacy_notifications SET actor_usernames = ?, is_read = ? WHERE id = ?`)
	for _, survivor := range survivors {
		actors, err := encodeActors(survivor.ActorUsernames)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, update, actors, survivor.IsRead, survivor.ID); err != nil {
			return fmt.Errorf("failed to update surviving legacy notification: %w", err)
		}
	}

	if len(deleteIDs) > 0 {
		query, args, err := sqlx.In(`DELETE FROM legacy_notifications WHERE id IN (?)`, deleteIDs)
		if err != nil {
			return fmt.Errorf("failed to build delete query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete redundant legacy notifications: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit legacy compaction: %w", err)
	}
	return nil
}
