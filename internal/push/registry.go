// Package push keeps the live real-time connections of each receiver and
// fans payloads out to them.
package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/metrics"
)

const (
	defaultQueueSize    = 32
	defaultWriteTimeout = 5 * time.Second
)

// Sink is the transport behind one connection. WriteJSON must give up when
// ctx is done.
type Sink interface {
	WriteJSON(ctx context.Context, payload any) error
	Close() error
}

// Conn is a registered connection. Its writer goroutine owns the sink.
type Conn struct {
	receiver domain.Receiver
	sink     Sink
	queue    chan any
	done     chan struct{}
	once     sync.Once
}

// Receiver returns who the connection belongs to
func (c *Conn) Receiver() domain.Receiver {
	return c.receiver
}

// Done is closed once the connection has been dropped or unregistered
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.sink.Close()
	})
}

// Registry maps receivers to their live connections. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.Receiver]map[*Conn]struct{}
	closed bool

	queueSize    int
	writeTimeout time.Duration
}

// NewRegistry creates a registry. Non-positive values fall back to defaults.
func NewRegistry(queueSize int, writeTimeout time.Duration) *Registry {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Registry{
		conns:        make(map[domain.Receiver]map[*Conn]struct{}),
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
	}
}

// Register adds a connection for receiver and starts its writer
func (r *Registry) Register(receiver domain.Receiver, sink Sink) *Conn {
	c := &Conn{
		receiver: receiver,
		sink:     sink,
		queue:    make(chan any, r.queueSize),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.close()
		return c
	}
	set, ok := r.conns[receiver]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[receiver] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()

	metrics.PushConnections.Inc()
	go r.write(c)

	return c
}

// Unregister removes a connection and closes its sink. Repeated calls are no-ops.
func (r *Registry) Unregister(c *Conn) {
	if r.remove(c) {
		metrics.PushConnections.Dec()
	}
	c.close()
}

// Notify queues payload on every connection of receiver and returns how many
// accepted it. Connections whose queue is full are dropped.
func (r *Registry) Notify(receiver domain.Receiver, payload any) int {
	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.conns[receiver]))
	for c := range r.conns[receiver] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	queued := 0
	for _, c := range targets {
		select {
		case c.queue <- payload:
			queued++
		case <-c.done:
		default:
			r.drop(c, metrics.ReasonQueueFull, nil)
		}
	}
	return queued
}

// ConnectionCount returns the number of live connections
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// ConnectionsFor returns the number of live connections of one receiver
func (r *Registry) ConnectionsFor(receiver domain.Receiver) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[receiver])
}

// Close drops every connection and rejects new ones
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	var all []*Conn
	for _, set := range r.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.Unlock()

	for _, c := range all {
		r.Unregister(c)
	}
}

func (r *Registry) remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.receiver]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.receiver)
	}
	return true
}

func (r *Registry) drop(c *Conn, reason string, err error) {
	if !r.remove(c) {
		return
	}
	metrics.PushConnections.Dec()
	metrics.PushDropped.WithLabelValues(reason).Inc()
	c.close()

	attrs := []any{slog.String("receiver", c.receiver.String()), slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	slog.Info("dropped push connection", attrs...)
}

func (r *Registry) write(c *Conn) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.queue:
			ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
			err := c.sink.WriteJSON(ctx, payload)
			cancel()
			if err != nil {
				r.drop(c, metrics.ReasonWriteError, err)
				return
			}
			metrics.PushDelivered.Inc()
		}
	}
}
