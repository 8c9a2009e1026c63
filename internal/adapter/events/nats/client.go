// Package nats feeds domain events published on a NATS subject into the
// in-process event bus.
package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"github.com/staffhub/notifications/internal/domain"
)

// Publisher accepts decoded events
type Publisher interface {
	Publish(event domain.DomainEvent) domain.DomainEvent
}

type Client struct {
	nc *natspkg.Conn
}

func NewClient(url string) (*Client, error) {
	nc, err := natspkg.Connect(url,
		natspkg.Name("notifications"),
		natspkg.MaxReconnects(-1),
		natspkg.ReconnectWait(2*time.Second),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		natspkg.ReconnectHandler(func(nc *natspkg.Conn) {
			slog.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{nc: nc}, nil
}

// Close drains the subscriptions and closes the connection
func (c *Client) Close() {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}

func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.Status() == natspkg.CONNECTED
}

// PublishEvent sends an event to subject
func (c *Client) PublishEvent(subject string, event domain.DomainEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return c.nc.Publish(subject, data)
}

// SubscribeEvents hands every well-formed event on subject to publisher.
// Malformed messages are logged and skipped.
func (c *Client) SubscribeEvents(subject string, publisher Publisher) (*natspkg.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *natspkg.Msg) {
		event, err := DecodeEvent(msg.Data)
		if err != nil {
			slog.Warn("dropping malformed event", slog.String("subject", msg.Subject), slog.Any("error", err))
			return
		}
		publisher.Publish(event)
	})
}

// DecodeEvent parses a JSON domain event and checks the fields routing needs
func DecodeEvent(data []byte) (domain.DomainEvent, error) {
	var event domain.DomainEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.DomainEvent{}, fmt.Errorf("invalid event payload: %w", err)
	}
	if event.Type == "" {
		return domain.DomainEvent{}, errors.New("event type is required")
	}
	if event.TargetID == "" || event.TargetType == "" {
		return domain.DomainEvent{}, errors.New("event target is required")
	}
	return event, nil
}
