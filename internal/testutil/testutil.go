// Package testutil provides in-memory collaborators for tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/repository"
)

// BaseTime is a fixed instant tests build their clocks on
var BaseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewDB opens a migrated in-memory SQLite database closed with the test
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := repository.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Directory is an in-memory identity directory
type Directory struct {
	Employees map[string]string
	Users     map[string]string
	Managers  map[string]string
	Admins    []string

	// Err, when set, is returned by every lookup
	Err error
	// Delay blocks every lookup until it elapses or ctx is done
	Delay time.Duration
}

// NewDirectory returns the directory used by most pipeline tests: employee 7
// reports to manager 3 and user 9 is the only admin.
func NewDirectory() *Directory {
	return &Directory{
		Employees: map[string]string{"3": "Maria Manager", "7": "Eve Employee"},
		Users:     map[string]string{"9": "root", "12": "alice"},
		Managers:  map[string]string{"7": "3"},
		Admins:    []string{"9"},
	}
}

func (d *Directory) wait(ctx context.Context) error {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return d.Err
}

func (d *Directory) EmployeeName(ctx context.Context, id string) (string, error) {
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	return d.Employees[id], nil
}

func (d *Directory) UserName(ctx context.Context, id string) (string, error) {
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	return d.Users[id], nil
}

func (d *Directory) ManagerOf(ctx context.Context, employeeID string) (string, error) {
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	return d.Managers[employeeID], nil
}

func (d *Directory) AdminIDs(ctx context.Context) ([]string, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), d.Admins...), nil
}

// Push is one payload recorded by Pusher
type Push struct {
	Receiver domain.Receiver
	Payload  any
}

// Pusher records every Notify call
type Pusher struct {
	mu     sync.Mutex
	pushes []Push
}

func (p *Pusher) Notify(receiver domain.Receiver, payload any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, Push{Receiver: receiver, Payload: payload})
	return 1
}

// Pushes returns a copy of the recorded payloads
func (p *Pusher) Pushes() []Push {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Push(nil), p.pushes...)
}

// For returns the payloads recorded for one receiver
func (p *Pusher) For(receiver domain.Receiver) []any {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []any
	for _, push := range p.pushes {
		if push.Receiver == receiver {
			out = append(out, push.Payload)
		}
	}
	return out
}
