package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/logger"
)

// LegacyStore is the storage contract of the one-row-per-event table
type LegacyStore interface {
	ListReceivers(ctx context.Context) ([]string, error)
	ListByReceiver(ctx context.Context, receiverID string) ([]domain.LegacyNotification, error)
	ApplyBundle(ctx context.Context, survivors []domain.BundledNotification, deleteIDs []int64) error
}

// LegacyService compacts legacy notification rows into bundles
type LegacyService struct {
	store LegacyStore
}

// NewLegacyService creates a new legacy service
func NewLegacyService(store LegacyStore) *LegacyService {
	return &LegacyService{store: store}
}

// CompactResult summarizes one compaction run
type CompactResult struct {
	Receivers int `json:"receivers"`
	Bundles   int `json:"bundles"`
	Deleted   int `json:"deleted"`
}

// Compact bundles the legacy rows of one receiver in place
func (s *LegacyService) Compact(ctx context.Context, receiverID string) (*BundleResult, error) {
	rows, err := s.store.ListByReceiver(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	result := Bundle(rows)
	if len(result.DeleteIDs) == 0 {
		return &result, nil
	}

	if err := s.store.ApplyBundle(ctx, result.Bundled, result.DeleteIDs); err != nil {
		return nil, fmt.Errorf("failed to compact receiver %s: %w", receiverID, err)
	}
	return &result, nil
}

// CompactAll compacts every receiver that has legacy rows. It stops at the
// first failure; receivers already compacted stay compacted.
func (s *LegacyService) CompactAll(ctx context.Context) (*CompactResult, error) {
	summary := &CompactResult{}

	receivers, err := s.store.ListReceivers(ctx)
	if err != nil {
		return summary, err
	}

	for _, receiverID := range receivers {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := s.Compact(ctx, receiverID)
		if err != nil {
			return summary, err
		}

		summary.Receivers++
		summary.Bundles += len(result.Bundled)
		summary.Deleted += len(result.DeleteIDs)

		logger.From(ctx).Debug("compacted legacy notifications",
			slog.String("receiver_id", receiverID),
			slog.Int("bundles", len(result.Bundled)),
			slog.Int("deleted", len(result.DeleteIDs)),
		)
	}

	return summary, nil
}
