package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/logger"
	"github.com/staffhub/notifications/internal/metrics"
	"github.com/staffhub/notifications/internal/repository"
)

const maxUpsertAttempts = 3

var tracer = otel.Tracer("github.com/staffhub/notifications/internal/service")

// Processor turns domain events into aggregated notifications
type Processor struct {
	rules     *RuleRegistry
	store     NotificationStore
	events    EventLog
	directory Directory
	pusher    Pusher
	locks     *keyedMutex

	now            func() time.Time
	resolveTimeout time.Duration
	storeTimeout   time.Duration
	maxFoldCount   int
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithClock replaces time.Now
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// WithTimeouts bounds directory lookups and store calls
func WithTimeouts(resolve, store time.Duration) ProcessorOption {
	return func(p *Processor) {
		if resolve > 0 {
			p.resolveTimeout = resolve
		}
		if store > 0 {
			p.storeTimeout = store
		}
	}
}

// WithMaxFoldCount closes an aggregation window early once a notification
// holds n events. Zero means no limit.
func WithMaxFoldCount(n int) ProcessorOption {
	return func(p *Processor) { p.maxFoldCount = n }
}

// NewProcessor creates a new notification processor. events and pusher may be nil.
func NewProcessor(rules *RuleRegistry, store NotificationStore, events EventLog, directory Directory, pusher Pusher, opts ...ProcessorOption) *Processor {
	p := &Processor{
		rules:          rules,
		store:          store,
		events:         events,
		directory:      directory,
		pusher:         pusher,
		locks:          newKeyedMutex(),
		now:            time.Now,
		resolveTimeout: 2 * time.Second,
		storeTimeout:   5 * time.Second,
		maxFoldCount:   100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one event. Receiver failures do not stop the remaining
// receivers; they are returned joined so the caller can log them once.
func (p *Processor) Process(ctx context.Context, event domain.DomainEvent) error {
	start := time.Now()
	defer func() { metrics.ProcessDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := tracer.Start(ctx, "notifications.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", event.Type),
		attribute.String("event.id", event.ID.String()),
	)

	log := logger.From(ctx).With(slog.String("event_type", event.Type), slog.String("event_id", event.ID.String()))

	if p.events != nil {
		storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
		if err := p.events.Append(storeCtx, event); err != nil {
			log.Warn("failed to record event", slog.Any("error", err))
		}
		cancel()
	}

	rule, ok := p.rules.Lookup(event.Type)
	if !ok {
		metrics.EventsProcessed.WithLabelValues(metrics.OutcomeNoRule).Inc()
		return nil
	}

	receivers := p.resolveReceivers(ctx, log, rule, event)
	if len(receivers) == 0 {
		metrics.EventsProcessed.WithLabelValues(metrics.OutcomeNotified).Inc()
		return nil
	}

	actorName := p.actorName(ctx, log, event)

	var errs []error
	for _, receiver := range receivers {
		key := rule.AggregationKey(event, receiver)
		n, created, err := p.upsert(ctx, event, rule, receiver, key, actorName)
		if err != nil {
			log.Error("failed to upsert notification",
				slog.String("receiver", receiver.String()),
				slog.String("aggregation_key", key),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("receiver %s key %s: %w", receiver, key, err))
			continue
		}

		if created {
			metrics.NotificationsUpserted.WithLabelValues(metrics.OutcomeCreated).Inc()
		} else {
			metrics.NotificationsUpserted.WithLabelValues(metrics.OutcomeFolded).Inc()
		}

		if p.pusher != nil {
			p.pusher.Notify(receiver, domain.PushMessage{
				Kind:         domain.PushNotification,
				Notification: n,
				Message:      MessageFor(n.Type, n.Count, n.Actors),
				Created:      created,
			})
		}
	}

	if len(errs) > 0 {
		metrics.EventsProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification upsert failed")
		return err
	}

	metrics.EventsProcessed.WithLabelValues(metrics.OutcomeNotified).Inc()
	return nil
}

func (p *Processor) resolveReceivers(ctx context.Context, log *slog.Logger, rule Rule, event domain.DomainEvent) []domain.Receiver {
	ctx, cancel := context.WithTimeout(ctx, p.resolveTimeout)
	defer cancel()

	receivers, err := rule.ResolveReceivers(ctx, p.directory, event)
	if err != nil {
		log.Warn("failed to resolve receivers", slog.Any("error", err))
		return nil
	}

	valid := make([]domain.Receiver, 0, len(receivers))
	for _, r := range receivers {
		if r.ID == "" || !r.Type.Valid() {
			log.Warn("resolver returned invalid receiver", slog.String("receiver", r.String()))
			continue
		}
		valid = append(valid, r)
	}
	return valid
}

// actorName tries the employee directory, then the user directory. Any
// failure degrades to an anonymous actor.
func (p *Processor) actorName(ctx context.Context, log *slog.Logger, event domain.DomainEvent) string {
	if !event.HasActor() {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, p.resolveTimeout)
	defer cancel()

	name, err := p.directory.EmployeeName(ctx, event.ActorID)
	if err != nil {
		log.Warn("failed to resolve actor as employee", slog.String("actor_id", event.ActorID), slog.Any("error", err))
	}
	if name != "" {
		return name
	}

	name, err = p.directory.UserName(ctx, event.ActorID)
	if err != nil {
		log.Warn("failed to resolve actor as user", slog.String("actor_id", event.ActorID), slog.Any("error", err))
	}
	return name
}

// upsert folds the event into the open notification for the key or starts a
// new one. Races lost to another writer are retried.
func (p *Processor) upsert(ctx context.Context, event domain.DomainEvent, rule Rule, receiver domain.Receiver, key, actorName string) (*domain.Notification, bool, error) {
	unlock := p.locks.Lock(receiver.String() + "|" + key)
	defer unlock()

	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
		n, created, err := p.upsertOnce(storeCtx, event, rule, receiver, key, actorName)
		cancel()

		if errors.Is(err, repository.ErrDuplicateOpen) || errors.Is(err, repository.ErrFoldConflict) {
			continue
		}
		return n, created, err
	}

	return nil, false, fmt.Errorf("notification still contended after %d attempts", maxUpsertAttempts)
}

func (p *Processor) upsertOnce(ctx context.Context, event domain.DomainEvent, rule Rule, receiver domain.Receiver, key, actorName string) (*domain.Notification, bool, error) {
	existing, err := p.store.FindOpen(ctx, receiver, key)
	if err != nil {
		return nil, false, err
	}

	now := p.now().UTC()

	if existing != nil && existing.WithinWindow(now, rule.Window) && !p.foldLimitReached(existing) {
		prevCount := existing.Count
		existing.Fold(actorName, now)
		if err := p.store.Fold(ctx, existing, prevCount); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	var supersededID int64
	if existing != nil {
		supersededID = existing.ID
	}

	n := domain.NewNotification(event, receiver, key, actorName, now)
	if err := p.store.Create(ctx, n, supersededID); err != nil {
		return nil, false, err
	}
	return n, true, nil
}

func (p *Processor) foldLimitReached(n *domain.Notification) bool {
	return p.maxFoldCount > 0 && n.Count >= p.maxFoldCount
}
