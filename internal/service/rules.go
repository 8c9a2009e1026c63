package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/staffhub/notifications/internal/domain"
)

// ReceiverResolver finds who should hear about an event. It may only read
// from the directory; duplicates across resolution paths are kept.
type ReceiverResolver func(ctx context.Context, dir Directory, event domain.DomainEvent) ([]domain.Receiver, error)

// KeyFunc derives the aggregation key for one receiver of an event. It must
// be deterministic.
type KeyFunc func(event domain.DomainEvent, receiver domain.Receiver) string

// Rule tells the processor how to turn one event type into notifications
type Rule struct {
	EventType        string
	ResolveReceivers ReceiverResolver
	AggregationKey   KeyFunc
	Window           time.Duration
}

// RuleRegistry maps event types to rules. It is built once at startup and read-only afterwards.
type RuleRegistry struct {
	rules map[string]Rule
}

// NewRuleRegistry creates a registry holding at most one rule per event type
func NewRuleRegistry(rules ...Rule) (*RuleRegistry, error) {
	reg := &RuleRegistry{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		if rule.EventType == "" || rule.ResolveReceivers == nil || rule.AggregationKey == nil {
			return nil, fmt.Errorf("incomplete notification rule for %q", rule.EventType)
		}
		if rule.Window <= 0 {
			return nil, fmt.Errorf("notification rule %q needs a positive window", rule.EventType)
		}
		if _, exists := reg.rules[rule.EventType]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.EventType)
		}
		reg.rules[rule.EventType] = rule
	}
	return reg, nil
}

// Lookup returns the rule for an event type. Unknown types are not an error.
func (r *RuleRegistry) Lookup(eventType string) (Rule, bool) {
	rule, ok := r.rules[eventType]
	return rule, ok
}

// PerTargetKey aggregates events about the same entity
func PerTargetKey(event domain.DomainEvent, _ domain.Receiver) string {
	return strings.Join([]string{event.Type, event.TargetType, event.TargetID}, ":")
}

// DigestKey aggregates every event of a type regardless of target
func DigestKey(event domain.DomainEvent, _ domain.Receiver) string {
	return event.Type
}

// Admins resolves to every admin user
func Admins(ctx context.Context, dir Directory, _ domain.DomainEvent) ([]domain.Receiver, error) {
	ids, err := dir.AdminIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve admins: %w", err)
	}
	receivers := make([]domain.Receiver, 0, len(ids))
	for _, id := range ids {
		receivers = append(receivers, domain.User(id))
	}
	return receivers, nil
}

// EmployeeFromMeta resolves to the employee whose id is stored under key.
// When skipActor is set an employee acting on their own entity is not notified.
func EmployeeFromMeta(key string, skipActor bool) ReceiverResolver {
	return fromMeta(key, skipActor, domain.Employee)
}

// UserFromMeta resolves to the user whose id is stored under key
func UserFromMeta(key string, skipActor bool) ReceiverResolver {
	return fromMeta(key, skipActor, domain.User)
}

func fromMeta(key string, skipActor bool, build func(string) domain.Receiver) ReceiverResolver {
	return func(_ context.Context, _ Directory, event domain.DomainEvent) ([]domain.Receiver, error) {
		id := event.MetaString(key)
		if id == "" {
			return nil, nil
		}
		if skipActor && id == event.ActorID {
			return nil, nil
		}
		return []domain.Receiver{build(id)}, nil
	}
}

// ManagerAndAdmins resolves to the requesting employee's manager plus every admin.
// The employee is taken from metadata, falling back to the actor.
func ManagerAndAdmins(ctx context.Context, dir Directory, event domain.DomainEvent) ([]domain.Receiver, error) {
	employeeID := event.MetaString(domain.MetaEmployeeID)
	if employeeID == "" {
		employeeID = event.ActorID
	}

	var receivers []domain.Receiver
	if employeeID != "" {
		managerID, err := dir.ManagerOf(ctx, employeeID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve manager: %w", err)
		}
		if managerID != "" {
			receivers = append(receivers, domain.Employee(managerID))
		}
	}

	admins, err := Admins(ctx, dir, event)
	if err != nil {
		return nil, err
	}
	return append(receivers, admins...), nil
}

// DefaultRules returns the rules for the HR and social modules
func DefaultRules() []Rule {
	return []Rule{
		{EventType: domain.EventLeaveRequested, ResolveReceivers: ManagerAndAdmins, AggregationKey: PerTargetKey, Window: 10 * time.Minute},
		{EventType: domain.EventLeaveApproved, ResolveReceivers: EmployeeFromMeta(domain.MetaEmployeeID, false), AggregationKey: PerTargetKey, Window: time.Minute},
		{EventType: domain.EventLeaveRejected, ResolveReceivers: EmployeeFromMeta(domain.MetaEmployeeID, false), AggregationKey: PerTargetKey, Window: time.Minute},
		{EventType: domain.EventAttendanceMissed, ResolveReceivers: Admins, AggregationKey: DigestKey, Window: time.Hour},
		{EventType: domain.EventEmployeeCreated, ResolveReceivers: Admins, AggregationKey: DigestKey, Window: time.Hour},
		{EventType: domain.EventTicketCreated, ResolveReceivers: Admins, AggregationKey: DigestKey, Window: 15 * time.Minute},
		{EventType: domain.EventTicketAssigned, ResolveReceivers: EmployeeFromMeta(domain.MetaAssigneeID, true), AggregationKey: PerTargetKey, Window: 5 * time.Minute},
		{EventType: domain.EventTicketCommented, ResolveReceivers: EmployeeFromMeta(domain.MetaOwnerID, true), AggregationKey: PerTargetKey, Window: 10 * time.Minute},
		{EventType: domain.EventPostReplied, ResolveReceivers: UserFromMeta(domain.MetaAuthorID, true), AggregationKey: PerTargetKey, Window: 30 * time.Minute},
		{EventType: domain.EventPostVoted, ResolveReceivers: UserFromMeta(domain.MetaAuthorID, true), AggregationKey: PerTargetKey, Window: 30 * time.Minute},
		{EventType: domain.EventCommentReplied, ResolveReceivers: UserFromMeta(domain.MetaAuthorID, true), AggregationKey: PerTargetKey, Window: 30 * time.Minute},
	}
}
