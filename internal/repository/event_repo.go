package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/staffhub/notifications/internal/domain"
)

// EventRepository is the append-only audit log of raw domain events
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append records a raw event
func (r *EventRepository) Append(ctx context.Context, event domain.DomainEvent) error {
	metadata := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
	}

	query := r.db.Rebind(`
		INSERT INTO events (id, type, actor_id, target_id, target_type, metadata, occurred_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		event.ID.String(),
		event.Type,
		event.ActorID,
		event.TargetID,
		event.TargetType,
		string(metadata),
		event.OccurredAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

type eventRow struct {
	ID         string    `db:"id"`
	Type       string    `db:"type"`
	ActorID    string    `db:"actor_id"`
	TargetID   string    `db:"target_id"`
	TargetType string    `db:"target_type"`
	Metadata   string    `db:"metadata"`
	OccurredAt time.Time `db:"occurred_at"`
}

// ListByTarget returns the recorded events about one entity, oldest first
func (r *EventRepository) ListByTarget(ctx context.Context, targetType, targetID string, limit int) ([]domain.DomainEvent, error) {
	query := r.db.Rebind(`
		SELECT id, type, actor_id, target_id, target_type, metadata, occurred_at
		FROM events
		WHERE target_type = ? AND target_id = ?
		ORDER BY occurred_at ASC
		LIMIT ?
	`)

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, targetType, targetID, limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]domain.DomainEvent, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event id %q: %w", row.ID, err)
		}
		event := domain.DomainEvent{
			ID:         id,
			Type:       row.Type,
			ActorID:    row.ActorID,
			TargetID:   row.TargetID,
			TargetType: row.TargetType,
			OccurredAt: row.OccurredAt.UTC(),
		}
		if row.Metadata != "" && row.Metadata != "{}" {
			if err := json.Unmarshal([]byte(row.Metadata), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode event metadata: %w", err)
			}
		}
		events = append(events, event)
	}

	return events, nil
}
