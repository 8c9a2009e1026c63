package service

import (
	"fmt"
	"strings"

	"github.com/staffhub/notifications/internal/domain"
)

type messageTemplate struct {
	actor  string // %s is the actor
	single string
	digest string // %d is the count
}

var messageTemplates = map[string]messageTemplate{
	domain.EventLeaveRequested:   {"%s requested leave", "A new leave request was submitted", "%d new leave requests submitted"},
	domain.EventLeaveApproved:    {"%s approved your leave request", "Your leave request was approved", "%d leave request updates"},
	domain.EventLeaveRejected:    {"%s rejected your leave request", "Your leave request was rejected", "%d leave request updates"},
	domain.EventAttendanceMissed: {"%s missed attendance", "An attendance was missed", "%d new missed attendances submitted"},
	domain.EventEmployeeCreated:  {"%s added a new employee", "A new employee was added", "%d new employees submitted"},
	domain.EventTicketCreated:    {"%s opened a ticket", "A new ticket was opened", "%d new tickets submitted"},
	domain.EventTicketAssigned:   {"%s assigned you a ticket", "A ticket was assigned to you", "%d new ticket assignments"},
	domain.EventTicketCommented:  {"%s commented on your ticket", "New comment on your ticket", "%d new comments on your ticket"},
	domain.EventPostReplied:      {"%s replied to your post", "Someone replied to your post", "%d new replies to your post"},
	domain.EventPostVoted:        {"%s voted on your post", "Someone voted on your post", "%d new votes on your post"},
	domain.EventCommentReplied:   {"%s replied to your comment", "Someone replied to your comment", "%d new replies to your comment"},
}

// MessageFor renders the human-readable line shown for a notification
func MessageFor(eventType string, count int, actors []string) string {
	tmpl, ok := messageTemplates[eventType]
	if !ok {
		label := humanize(eventType)
		if count > 1 {
			return fmt.Sprintf("%d new %s notifications", count, label)
		}
		return "New " + label + " notification"
	}

	if count > 1 {
		return fmt.Sprintf(tmpl.digest, count)
	}
	if len(actors) > 0 && actors[0] != "" {
		return fmt.Sprintf(tmpl.actor, actors[0])
	}
	return tmpl.single
}

// humanize turns "SOME_EVENT" into "some event"
func humanize(eventType string) string {
	s := strings.ToLower(strings.TrimSpace(eventType))
	s = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "unknown"
	}
	return s
}
