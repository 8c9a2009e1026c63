package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/repository"
	"github.com/staffhub/notifications/internal/testutil"
)

func seedNotifications(t *testing.T, store *repository.NotificationRepository, receiver domain.Receiver, n int) []int64 {
	t.Helper()

	ids := make([]int64, 0, n)
	for i := range n {
		e := domain.DomainEvent{Type: domain.EventPostVoted, TargetType: domain.TargetPost, TargetID: string(rune('a' + i))}
		notification := domain.NewNotification(e, receiver, PerTargetKey(e, receiver), "alice", testutil.BaseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Create(context.Background(), notification, 0))
		ids = append(ids, notification.ID)
	}
	return ids
}

func newNotificationService(t *testing.T) (*NotificationService, *repository.NotificationRepository, *testutil.Pusher) {
	t.Helper()

	store := repository.NewNotificationRepository(testutil.NewDB(t))
	pusher := &testutil.Pusher{}
	svc := NewNotificationService(store, pusher)
	svc.now = func() time.Time { return testutil.BaseTime.Add(time.Hour) }
	return svc, store, pusher
}

func TestNotificationService_List(t *testing.T) {
	svc, store, _ := newNotificationService(t)
	ctx := context.Background()
	receiver := domain.User("12")

	ids := seedNotifications(t, store, receiver, 5)
	seedNotifications(t, store, domain.Employee("12"), 2)
	_, err := store.MarkSeen(ctx, receiver, ids[:2], testutil.BaseTime)
	require.NoError(t, err)

	resp, err := svc.List(ctx, receiver, domain.NotificationListRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 3, resp.UnreadCount)
	require.Len(t, resp.Notifications, 2)
	assert.Equal(t, ids[4], resp.Notifications[0].ID, "newest first")
	assert.Equal(t, "alice voted on your post", resp.Notifications[0].Message)

	resp, err = svc.List(ctx, receiver, domain.NotificationListRequest{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, resp.Notifications, 1)
	assert.Equal(t, 3, resp.UnreadCount, "unread count ignores pagination")

	resp, err = svc.List(ctx, receiver, domain.NotificationListRequest{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Notifications, 3)
}

func TestNotificationService_ListValidation(t *testing.T) {
	svc, _, _ := newNotificationService(t)
	ctx := context.Background()

	for _, req := range []domain.NotificationListRequest{
		{Limit: -1},
		{Limit: 101},
		{Limit: 10, Offset: -1},
	} {
		_, err := svc.List(ctx, domain.User("1"), req)
		assert.ErrorIs(t, err, ErrInvalidPagination)
	}

	resp, err := svc.List(ctx, domain.User("1"), domain.NotificationListRequest{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Notifications)

	_, err = svc.List(ctx, domain.Receiver{ID: "1", Type: "robot"}, domain.NotificationListRequest{})
	assert.ErrorIs(t, err, ErrInvalidReceiver)
}

func TestNotificationService_MarkDelivered(t *testing.T) {
	svc, store, pusher := newNotificationService(t)
	ctx := context.Background()
	receiver := domain.User("12")
	ids := seedNotifications(t, store, receiver, 3)

	updated, err := svc.MarkDelivered(ctx, receiver, ids[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	updated, err = svc.MarkDelivered(ctx, receiver, ids[:2])
	require.NoError(t, err)
	assert.Zero(t, updated)

	count, err := svc.UnreadCount(ctx, receiver)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pushes := pusher.For(receiver)
	require.Len(t, pushes, 1, "no-op marks do not push")
	msg := pushes[0].(domain.PushMessage)
	assert.Equal(t, domain.PushUnreadCount, msg.Kind)
	require.NotNil(t, msg.UnreadCount)
	assert.Equal(t, 1, *msg.UnreadCount)
}

func TestNotificationService_MarkDeliveredValidation(t *testing.T) {
	svc, _, _ := newNotificationService(t)
	ctx := context.Background()

	tooMany := make([]int64, 501)
	for i := range tooMany {
		tooMany[i] = int64(i + 1)
	}

	for _, ids := range [][]int64{nil, {}, {0}, {3, -1}, tooMany} {
		_, err := svc.MarkDelivered(ctx, domain.User("1"), ids)
		assert.ErrorIs(t, err, ErrInvalidIDs)
	}
}

func TestNotificationService_MarkSeen(t *testing.T) {
	svc, store, _ := newNotificationService(t)
	ctx := context.Background()
	receiver := domain.Employee("7")
	other := domain.User("7")

	ids := seedNotifications(t, store, receiver, 3)
	seedNotifications(t, store, other, 2)

	updated, err := svc.MarkSeen(ctx, receiver, ids[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	updated, err = svc.MarkSeen(ctx, receiver, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	count, err := svc.UnreadCount(ctx, receiver)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = svc.UnreadCount(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "mark all is scoped to the receiver")

	_, err = svc.MarkSeen(ctx, receiver, []int64{-4})
	assert.ErrorIs(t, err, ErrInvalidIDs)
}

func TestNotificationService_ForeignIDsAreIgnored(t *testing.T) {
	svc, store, _ := newNotificationService(t)
	ctx := context.Background()

	theirs := seedNotifications(t, store, domain.User("9"), 1)

	updated, err := svc.MarkSeen(ctx, domain.User("12"), theirs)
	require.NoError(t, err)
	assert.Zero(t, updated)

	count, err := svc.UnreadCount(ctx, domain.User("9"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotificationService_ReadableWithoutPushConnections(t *testing.T) {
	p := newPipeline(t)
	p.proc.pusher = nil
	ctx := context.Background()

	require.NoError(t, p.proc.Process(ctx, ticketComment("7")))

	svc := NewNotificationService(p.store, nil)
	resp, err := svc.List(ctx, domain.Employee("3"), domain.NotificationListRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "Eve Employee commented on your ticket", resp.Notifications[0].Message)
	assert.Equal(t, 1, resp.UnreadCount)
}
