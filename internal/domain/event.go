package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the HR and social modules
const (
	EventLeaveRequested   = "LEAVE_REQUESTED"
	EventLeaveApproved    = "LEAVE_APPROVED"
	EventLeaveRejected    = "LEAVE_REJECTED"
	EventAttendanceMissed = "ATTENDANCE_MISSED"
	EventEmployeeCreated  = "EMPLOYEE_CREATED"
	EventTicketCreated    = "TICKET_CREATED"
	EventTicketAssigned   = "TICKET_ASSIGNED"
	EventTicketCommented  = "TICKET_COMMENTED"
	EventPostReplied      = "POST_REPLIED"
	EventPostVoted        = "POST_VOTED"
	EventCommentReplied   = "COMMENT_REPLIED"
)

// Target types
const (
	TargetLeaveRequest = "leave_request"
	TargetAttendance   = "attendance"
	TargetEmployee     = "employee"
	TargetTicket       = "ticket"
	TargetPost         = "post"
	TargetComment      = "comment"
)

// Metadata keys understood by the default rules
const (
	MetaEmployeeID = "employeeId"
	MetaAssigneeID = "assigneeId"
	MetaOwnerID    = "ownerId"
	MetaAuthorID   = "authorId"
)

// DomainEvent describes something that happened in a business module.
// It is created once by the publisher and never mutated afterwards.
type DomainEvent struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type" validate:"required,max=64"`
	ActorID    string         `json:"actorId,omitempty" validate:"max=64"`
	TargetID   string         `json:"targetId" validate:"required,max=128"`
	TargetType string         `json:"targetType" validate:"required,max=64"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// HasActor reports whether the event carries an originator
func (e DomainEvent) HasActor() bool {
	return e.ActorID != ""
}

// MetaString returns a metadata value as a string. Numeric JSON values are
// formatted without a fractional part so ids survive a JSON round trip.
func (e DomainEvent) MetaString(key string) string {
	v, ok := e.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}
