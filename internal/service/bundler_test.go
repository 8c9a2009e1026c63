package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/repository"
	"github.com/staffhub/notifications/internal/testutil"
)

func legacyRow(id int64, receiver, target, kind string, read bool, actors ...string) domain.LegacyNotification {
	return domain.LegacyNotification{
		ID:             id,
		ReceiverID:     receiver,
		TargetID:       target,
		Type:           kind,
		ActorUsernames: actors,
		IsRead:         read,
		CreatedAt:      testutil.BaseTime,
	}
}

func TestBundle_MergesSameKey(t *testing.T) {
	rows := []domain.LegacyNotification{
		legacyRow(10, "u1", "p1", "replied", false, "a"),
		legacyRow(11, "u1", "p1", "replied", false, "b"),
		legacyRow(12, "u1", "p1", "replied", false, "a"),
	}

	result := Bundle(rows)

	require.Len(t, result.Bundled, 1)
	b := result.Bundled[0]
	assert.Equal(t, int64(10), b.ID)
	assert.Equal(t, []string{"a", "b"}, b.ActorUsernames)
	assert.Equal(t, 3, b.Count)
	assert.Equal(t, []int64{11, 12}, result.DeleteIDs)
}

func TestBundle_SeparatesKeysAndSortsActors(t *testing.T) {
	rows := []domain.LegacyNotification{
		legacyRow(1, "u1", "p1", "replied", true, "zoe"),
		legacyRow(2, "u1", "p2", "replied", true, "bob"),
		legacyRow(3, "u1", "p1", "voted", true, "amy"),
		legacyRow(4, "u1", "p1", "replied", false, "amy", "zoe"),
		legacyRow(5, "u2", "p1", "replied", true, "bob"),
	}
	rows[2].Content = "up"

	result := Bundle(rows)

	require.Len(t, result.Bundled, 4)
	assert.Equal(t, []int64{1, 2, 3, 5}, []int64{result.Bundled[0].ID, result.Bundled[1].ID, result.Bundled[2].ID, result.Bundled[3].ID})
	assert.Equal(t, []string{"amy", "zoe"}, result.Bundled[0].ActorUsernames)
	assert.False(t, result.Bundled[0].IsRead, "one unread row keeps the bundle unread")
	assert.True(t, result.Bundled[1].IsRead)
	assert.Equal(t, []int64{4}, result.DeleteIDs)
}

func TestBundle_Empty(t *testing.T) {
	result := Bundle(nil)
	assert.NotNil(t, result.Bundled)
	assert.NotNil(t, result.DeleteIDs)
	assert.Empty(t, result.Bundled)
	assert.Empty(t, result.DeleteIDs)
}

func TestBundle_DoesNotMutateInput(t *testing.T) {
	rows := []domain.LegacyNotification{
		legacyRow(1, "u1", "p1", "replied", false, "b"),
		legacyRow(2, "u1", "p1", "replied", false, "a"),
	}

	Bundle(rows)

	assert.Equal(t, []string{"b"}, rows[0].ActorUsernames)
	assert.Equal(t, []string{"a"}, rows[1].ActorUsernames)
}

func TestLegacyService_CompactAll(t *testing.T) {
	repo := repository.NewLegacyRepository(testutil.NewDB(t))
	ctx := context.Background()

	for _, row := range []domain.LegacyNotification{
		legacyRow(0, "u1", "p1", "replied", false, "a"),
		legacyRow(0, "u1", "p1", "replied", false, "b"),
		legacyRow(0, "u1", "p1", "replied", false, "a"),
		legacyRow(0, "u2", "p9", "voted", true, "c"),
	} {
		require.NoError(t, repo.Insert(ctx, &row))
	}

	svc := NewLegacyService(repo)
	summary, err := svc.CompactAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, &CompactResult{Receivers: 2, Bundles: 2, Deleted: 2}, summary)

	remaining, err := repo.ListByReceiver(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, []string{"a", "b"}, remaining[0].ActorUsernames)

	again, err := svc.Compact(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, again.DeleteIDs)
}
