package service

import (
	"context"
	"time"

	"github.com/staffhub/notifications/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxMarkIDs      = 500
)

// NotificationService serves the receiver-facing read and state operations
type NotificationService struct {
	store  NotificationStore
	pusher Pusher
	now    func() time.Time
}

// NewNotificationService creates a new notification service. pusher may be nil.
func NewNotificationService(store NotificationStore, pusher Pusher) *NotificationService {
	return &NotificationService{
		store:  store,
		pusher: pusher,
		now:    time.Now,
	}
}

// List returns a page of the receiver's notifications, newest first, with
// the total and a live unread count
func (s *NotificationService) List(ctx context.Context, receiver domain.Receiver, req domain.NotificationListRequest) (*domain.NotificationListResponse, error) {
	if err := validateReceiver(receiver); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < 1 || limit > maxPageSize || req.Offset < 0 {
		return nil, ErrInvalidPagination
	}

	notifications, err := s.store.List(ctx, receiver, req.UnreadOnly, limit, req.Offset)
	if err != nil {
		return nil, err
	}

	total, err := s.store.Count(ctx, receiver, req.UnreadOnly)
	if err != nil {
		return nil, err
	}

	unread, err := s.store.CountUnread(ctx, receiver)
	if err != nil {
		return nil, err
	}

	views := make([]domain.NotificationView, 0, len(notifications))
	for _, n := range notifications {
		views = append(views, domain.NotificationView{
			Notification: *n,
			Message:      MessageFor(n.Type, n.Count, n.Actors),
		})
	}

	return &domain.NotificationListResponse{
		Notifications: views,
		Total:         total,
		UnreadCount:   unread,
	}, nil
}

// UnreadCount returns the live number of unread notifications
func (s *NotificationService) UnreadCount(ctx context.Context, receiver domain.Receiver) (int, error) {
	if err := validateReceiver(receiver); err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, receiver)
}

// MarkDelivered moves the receiver's unread notifications among ids to delivered
func (s *NotificationService) MarkDelivered(ctx context.Context, receiver domain.Receiver, ids []int64) (int64, error) {
	if err := validateReceiver(receiver); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrInvalidIDs
	}
	if err := validateIDs(ids); err != nil {
		return 0, err
	}

	updated, err := s.store.MarkDelivered(ctx, receiver, ids, s.now())
	if err != nil {
		return 0, err
	}

	s.pushUnreadCount(ctx, receiver, updated)
	return updated, nil
}

// MarkSeen moves the receiver's notifications among ids to seen. An empty
// id list marks every notification of the receiver.
func (s *NotificationService) MarkSeen(ctx context.Context, receiver domain.Receiver, ids []int64) (int64, error) {
	if err := validateReceiver(receiver); err != nil {
		return 0, err
	}
	if err := validateIDs(ids); err != nil {
		return 0, err
	}

	var (
		updated int64
		err     error
	)
	if len(ids) == 0 {
		updated, err = s.store.MarkAllSeen(ctx, receiver, s.now())
	} else {
		updated, err = s.store.MarkSeen(ctx, receiver, ids, s.now())
	}
	if err != nil {
		return 0, err
	}

	s.pushUnreadCount(ctx, receiver, updated)
	return updated, nil
}

// pushUnreadCount lets the receiver's other tabs refresh their badge
func (s *NotificationService) pushUnreadCount(ctx context.Context, receiver domain.Receiver, updated int64) {
	if s.pusher == nil || updated == 0 {
		return
	}
	unread, err := s.store.CountUnread(ctx, receiver)
	if err != nil {
		return
	}
	s.pusher.Notify(receiver, domain.PushMessage{
		Kind:        domain.PushUnreadCount,
		UnreadCount: &unread,
	})
}

func validateReceiver(receiver domain.Receiver) error {
	if receiver.ID == "" || !receiver.Type.Valid() {
		return ErrInvalidReceiver
	}
	return nil
}

func validateIDs(ids []int64) error {
	if len(ids) > maxMarkIDs {
		return ErrInvalidIDs
	}
	for _, id := range ids {
		if id <= 0 {
			return ErrInvalidIDs
		}
	}
	return nil
}
