package domain

import "time"

// LegacyNotification is a row from the one-row-per-event store that predates
// write-time aggregation.
type LegacyNotification struct {
	ID             int64     `json:"id" db:"id"`
	ReceiverID     string    `json:"receiverId" db:"receiver_id"`
	TargetID       string    `json:"targetId" db:"target_id"`
	Type           string    `json:"type" db:"type"`
	Content        string    `json:"content" db:"content"`
	ActorUsernames []string  `json:"actorUsernames" db:"-"`
	IsRead         bool      `json:"isRead" db:"is_read"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// BundledNotification is the read-time aggregate of legacy rows sharing a key
type BundledNotification struct {
	ID             int64     `json:"id"`
	ReceiverID     string    `json:"receiverId"`
	TargetID       string    `json:"targetId"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	ActorUsernames []string  `json:"actorUsernames"`
	Count          int       `json:"count"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}
