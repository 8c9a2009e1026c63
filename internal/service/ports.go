package service

import (
	"context"
	"time"

	"github.com/staffhub/notifications/internal/domain"
)

// NotificationStore is the narrow read/write contract over persisted notifications.
// It is implemented by repository.NotificationRepository.
type NotificationStore interface {
	FindOpen(ctx context.Context, receiver domain.Receiver, key string) (*domain.Notification, error)
	Create(ctx context.Context, n *domain.Notification, supersededID int64) error
	Fold(ctx context.Context, n *domain.Notification, prevCount int) error
	List(ctx context.Context, receiver domain.Receiver, unreadOnly bool, limit, offset int) ([]*domain.Notification, error)
	Count(ctx context.Context, receiver domain.Receiver, unreadOnly bool) (int, error)
	CountUnread(ctx context.Context, receiver domain.Receiver) (int, error)
	MarkDelivered(ctx context.Context, receiver domain.Receiver, ids []int64, at time.Time) (int64, error)
	MarkSeen(ctx context.Context, receiver domain.Receiver, ids []int64, at time.Time) (int64, error)
	MarkAllSeen(ctx context.Context, receiver domain.Receiver, at time.Time) (int64, error)
}

// EventLog records raw events for audit and replay
type EventLog interface {
	Append(ctx context.Context, event domain.DomainEvent) error
}

// Directory answers identity questions owned by the HR and admin modules
type Directory interface {
	EmployeeName(ctx context.Context, id string) (string, error)
	UserName(ctx context.Context, id string) (string, error)
	ManagerOf(ctx context.Context, employeeID string) (string, error)
	AdminIDs(ctx context.Context) ([]string, error)
}

// Pusher fans a payload out to the live connections of a receiver
type Pusher interface {
	Notify(receiver domain.Receiver, payload any) int
}
