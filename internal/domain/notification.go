package domain

import (
	"slices"
	"time"
)

// NotificationState represents the delivery state of a notification
type NotificationState string

const (
	StateUnread    NotificationState = "unread"
	StateDelivered NotificationState = "delivered"
	StateSeen      NotificationState = "seen"
)

// Notification is the persisted, possibly aggregated notification for one receiver
type Notification struct {
	ID             int64             `json:"id" db:"id"`
	ReceiverID     string            `json:"receiverId" db:"receiver_id"`
	ReceiverType   ReceiverType      `json:"receiverType" db:"receiver_type"`
	Type           string            `json:"type" db:"type"`
	TargetID       string            `json:"targetId" db:"target_id"`
	TargetType     string            `json:"targetType" db:"target_type"`
	Actors         []string          `json:"actors" db:"-"`
	Count          int               `json:"count" db:"count"`
	State          NotificationState `json:"state" db:"state"`
	AggregationKey string            `json:"aggregationKey" db:"aggregation_key"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time         `json:"updatedAt" db:"updated_at"`
	DeliveredAt    *time.Time        `json:"deliveredAt,omitempty" db:"delivered_at"`
	SeenAt         *time.Time        `json:"seenAt,omitempty" db:"seen_at"`
}

// Receiver returns the (id, type) pair the notification belongs to
func (n *Notification) Receiver() Receiver {
	return Receiver{ID: n.ReceiverID, Type: n.ReceiverType}
}

// WithinWindow reports whether an event at now may still fold into n
func (n *Notification) WithinWindow(now time.Time, window time.Duration) bool {
	return now.Sub(n.CreatedAt) < window
}

// Fold merges one more event into the notification. The state always goes
// back to unread, even from seen, and deliveredAt is cleared.
func (n *Notification) Fold(actorName string, now time.Time) {
	if actorName != "" && !slices.Contains(n.Actors, actorName) {
		n.Actors = append(n.Actors, actorName)
	}
	n.Count++
	n.State = StateUnread
	n.DeliveredAt = nil
	n.UpdatedAt = now
}

// NewNotification starts a fresh notification for the first event of a key
func NewNotification(event DomainEvent, receiver Receiver, key, actorName string, now time.Time) *Notification {
	actors := []string{}
	if actorName != "" {
		actors = append(actors, actorName)
	}
	return &Notification{
		ReceiverID:     receiver.ID,
		ReceiverType:   receiver.Type,
		Type:           event.Type,
		TargetID:       event.TargetID,
		TargetType:     event.TargetType,
		Actors:         actors,
		Count:          1,
		State:          StateUnread,
		AggregationKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NotificationView is a notification with its rendered message
type NotificationView struct {
	Notification
	Message string `json:"message"`
}

// NotificationListRequest represents a request to list notifications
type NotificationListRequest struct {
	UnreadOnly bool `json:"unreadOnly,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// NotificationListResponse represents the response for listing notifications
type NotificationListResponse struct {
	Notifications []NotificationView `json:"notifications"`
	Total         int                `json:"total"`
	UnreadCount   int                `json:"unreadCount"`
}

// MarkNotificationsRequest represents a request to mark notifications delivered or seen
type MarkNotificationsRequest struct {
	NotificationIDs []int64 `json:"notificationIds" validate:"omitempty,max=500,dive,gt=0"`
}

// UnreadCountResponse is returned by the unread counter endpoint
type UnreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

// PushMessage is the envelope written to live connections
type PushMessage struct {
	Kind         string        `json:"kind"`
	Notification *Notification `json:"notification,omitempty"`
	Message      string        `json:"message,omitempty"`
	Created      bool          `json:"created,omitempty"`
	UnreadCount  *int          `json:"unreadCount,omitempty"`
}

// Push message kinds
const (
	PushNotification = "notification"
	PushUnreadCount  = "unread_count"
)
