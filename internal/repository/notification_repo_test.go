package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/notifications/internal/domain"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func newNotification(receiver domain.Receiver, key string, at time.Time) *domain.Notification {
	event := domain.DomainEvent{Type: domain.EventLeaveRequested, TargetID: "42", TargetType: domain.TargetLeaveRequest}
	return domain.NewNotification(event, receiver, key, "Alice", at)
}

func TestNotificationRepository_CreateAndFindOpen(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()
	receiver := domain.Employee("3")

	n := newNotification(receiver, "leave:42", baseTime)
	require.NoError(t, repo.Create(ctx, n, 0))
	assert.NotZero(t, n.ID)

	found, err := repo.FindOpen(ctx, receiver, "leave:42")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, n.ID, found.ID)
	assert.Equal(t, []string{"Alice"}, found.Actors)
	assert.Equal(t, 1, found.Count)
	assert.Equal(t, domain.StateUnread, found.State)
	assert.True(t, found.CreatedAt.Equal(baseTime))

	missing, err := repo.FindOpen(ctx, domain.User("3"), "leave:42")
	require.NoError(t, err)
	assert.Nil(t, missing, "an admin sharing the id must not see the employee row")
}

func TestNotificationRepository_CreateDuplicateOpenKey(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()
	receiver := domain.Employee("3")

	require.NoError(t, repo.Create(ctx, newNotification(receiver, "k", baseTime), 0))

	err := repo.Create(ctx, newNotification(receiver, "k", baseTime.Add(time.Second)), 0)
	assert.ErrorIs(t, err, ErrDuplicateOpen)
}

func TestNotificationRepository_CreateSupersedesExpiredRow(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()
	receiver := domain.Employee("3")

	first := newNotification(receiver, "k", baseTime)
	require.NoError(t, repo.Create(ctx, first, 0))
	_, err := repo.MarkSeen(ctx, receiver, []int64{first.ID}, baseTime.Add(time.Minute))
	require.NoError(t, err)

	second := newNotification(receiver, "k", baseTime.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, second, first.ID))
	assert.NotEqual(t, first.ID, second.ID)

	open, err := repo.FindOpen(ctx, receiver, "k")
	require.NoError(t, err)
	assert.Equal(t, second.ID, open.ID)

	old, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSeen, old.State, "closing a window leaves the old state untouched")
}

func TestNotificationRepository_FoldOptimisticCheck(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()
	receiver := domain.Employee("3")

	n := newNotification(receiver, "k", baseTime)
	require.NoError(t, repo.Create(ctx, n, 0))
	_, err := repo.MarkDelivered(ctx, receiver, []int64{n.ID}, baseTime.Add(time.Second))
	require.NoError(t, err)

	n.Fold("Bob", baseTime.Add(2*time.Second))
	require.NoError(t, repo.Fold(ctx, n, 1))

	stored, err := repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Count)
	assert.Equal(t, []string{"Alice", "Bob"}, stored.Actors)
	assert.Equal(t, domain.StateUnread, stored.State)
	assert.Nil(t, stored.DeliveredAt)

	stale := *stored
	stale.Fold("Carol", baseTime.Add(3*time.Second))
	assert.ErrorIs(t, repo.Fold(ctx, &stale, 1), ErrFoldConflict)
}

func TestNotificationRepository_ListAndCount(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()
	receiver := domain.Employee("3")

	var ids []int64
	for i, key := range []string{"a", "b", "c"} {
		n := newNotification(receiver, key, baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, n, 0))
		ids = append(ids, n.ID)
	}
	require.NoError(t, repo.Create(ctx, newNotification(domain.User("3"), "a", baseTime), 0))

	page, err := repo.List(ctx, receiver, false, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID, "newest first")
	assert.Equal(t, ids[1], page[1].ID)

	page, err = repo.List(ctx, receiver, false, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	_, err = repo.MarkSeen(ctx, receiver, []int64{ids[0]}, baseTime)
	require.NoError(t, err)

	unread, err := repo.List(ctx, receiver, true, 10, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	total, err := repo.Count(ctx, receiver, false)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	unreadCount, err := repo.CountUnread(ctx, receiver)
	require.NoError(t, err)
	assert.Equal(t, 2, unreadCount)
}

func TestNotificationRepository_StateTransitions(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()
	receiver := domain.Employee("3")

	a := newNotification(receiver, "a", baseTime)
	b := newNotification(receiver, "b", baseTime)
	other := newNotification(domain.Employee("4"), "a", baseTime)
	for _, n := range []*domain.Notification{a, b, other} {
		require.NoError(t, repo.Create(ctx, n, 0))
	}

	t.Run("mark delivered is idempotent", func(t *testing.T) {
		rows, err := repo.MarkDelivered(ctx, receiver, []int64{a.ID}, baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 1, rows)

		rows, err = repo.MarkDelivered(ctx, receiver, []int64{a.ID}, baseTime.Add(2*time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 0, rows)

		stored, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateDelivered, stored.State)
		require.NotNil(t, stored.DeliveredAt)
		assert.True(t, stored.DeliveredAt.Equal(baseTime.Add(time.Minute)))
	})

	t.Run("foreign ids are ignored", func(t *testing.T) {
		rows, err := repo.MarkSeen(ctx, receiver, []int64{other.ID}, baseTime)
		require.NoError(t, err)
		assert.EqualValues(t, 0, rows)
	})

	t.Run("mark all seen touches only this receiver", func(t *testing.T) {
		rows, err := repo.MarkAllSeen(ctx, receiver, baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 2, rows)

		stored, err := repo.FindByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateUnread, stored.State)

		rows, err = repo.MarkDelivered(ctx, receiver, []int64{b.ID}, baseTime)
		require.NoError(t, err)
		assert.EqualValues(t, 0, rows, "seen is terminal for delivery marks")
	})
}
