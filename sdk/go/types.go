package notifications

import (
	"fmt"
	"time"
)

// Error represents an API error
type Error struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Message, e.StatusCode)
}

// RateLimitInfo contains rate limit information from response headers
type RateLimitInfo struct {
	Limit      int
	Used       int
	RetryAfter time.Duration
}

// Event is a domain event published by a business module
type Event struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	ActorID    string         `json:"actorId,omitempty"`
	TargetID   string         `json:"targetId"`
	TargetType string         `json:"targetType"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt *time.Time     `json:"occurredAt,omitempty"`
}

// Notification is one aggregated notification as returned by the API
type Notification struct {
	ID             int64      `json:"id"`
	ReceiverID     string     `json:"receiverId"`
	ReceiverType   string     `json:"receiverType"`
	Type           string     `json:"type"`
	TargetID       string     `json:"targetId"`
	TargetType     string     `json:"targetType"`
	Actors         []string   `json:"actors"`
	Count          int        `json:"count"`
	State          string     `json:"state"`
	AggregationKey string     `json:"aggregationKey"`
	Message        string     `json:"message,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	SeenAt         *time.Time `json:"seenAt,omitempty"`
}

// ListOptions filters and pages a notification listing
type ListOptions struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// ListResponse is one page of notifications
type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	UnreadCount   int            `json:"unreadCount"`
}

// Push message kinds
const (
	PushNotification = "notification"
	PushUnreadCount  = "unread_count"
)

// PushMessage is a frame received on the notification stream
type PushMessage struct {
	Kind         string        `json:"kind"`
	Notification *Notification `json:"notification,omitempty"`
	Message      string        `json:"message,omitempty"`
	Created      bool          `json:"created,omitempty"`
	UnreadCount  *int          `json:"unreadCount,omitempty"`
}
