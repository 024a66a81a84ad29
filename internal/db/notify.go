package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/dbpool"
)

// ChangesChannel is the NOTIFY channel the PostgreSQL backend publishes writes on.
const ChangesChannel = "graphrouter_changes"

// validChannel matches safe PostgreSQL LISTEN channel names.
var validChannel = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// Change is the payload of one write notification.
type Change struct {
	Kind   string `json:"kind"` // "node" or "edge"
	Op     string `json:"op"`   // "created", "updated", "deleted"
	Label  string `json:"label"`
	ID     string `json:"id"`
	Origin string `json:"origin"`
}

// ChangeHandler reacts to writes made by other instances sharing the database.
type ChangeHandler interface {
	HandleChange(c Change)
}

// NotifyBridge subscribes to PostgreSQL LISTEN/NOTIFY on ChangesChannel and
// forwards every change made by another instance to the handler. Changes
// carrying this instance's origin are skipped.
type NotifyBridge struct {
	log     *logrus.Logger
	pool    *dbpool.Pool
	origin  string
	handler ChangeHandler
}

// NewNotifyBridge creates a NotifyBridge wired to the given pool and handler.
func NewNotifyBridge(log *logrus.Logger, pool *dbpool.Pool, origin string, handler ChangeHandler) *NotifyBridge {
	return &NotifyBridge{
		log:     log,
		pool:    pool,
		origin:  origin,
		handler: handler,
	}
}

// Start launches the LISTEN/NOTIFY loop in a background goroutine.
// It verifies the database is reachable before returning. The background
// goroutine handles reconnection for subsequent failures.
func (b *NotifyBridge) Start(ctx context.Context) error {
	if !validChannel.MatchString(ChangesChannel) {
		return fmt.Errorf("notify bridge: invalid channel name %q", ChangesChannel)
	}

	if err := b.pool.Ping(ctx); err != nil {
		return fmt.Errorf("notify bridge: database not reachable: %w", err)
	}

	go b.listen(ctx)

	return nil
}

// listen acquires a connection, subscribes to the channel, and processes
// notifications until the context is cancelled.
func (b *NotifyBridge) listen(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		err := b.subscribeAndForward(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		b.log.WithError(err).WithField("retry_in", backoff).
			Warn("notify bridge connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

func (b *NotifyBridge) subscribeAndForward(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	// LISTEN takes the channel inline, not as a parameter.
	sanitizedChannel := pgx.Identifier{ChangesChannel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+sanitizedChannel); err != nil {
		return fmt.Errorf("executing LISTEN: %w", err)
	}

	b.log.WithField("channel", ChangesChannel).Info("notify bridge listening")

	for {
		// Periodic read deadline so ctx cancellation is observed.
		if err := conn.Conn().PgConn().Conn().SetReadDeadline(time.Now().Add(2 * time.Minute)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		b.handleNotification(notification)
	}
}

func (b *NotifyBridge) handleNotification(n *pgconn.Notification) {
	b.log.WithFields(logrus.Fields{
		"channel": n.Channel,
		"pid":     n.PID,
	}).Debug("notification received")

	c, ok := ParseChange(n.Payload)
	if !ok {
		b.log.Warn("dropping malformed change notification")

		return
	}

	if c.Origin == b.origin {
		return
	}

	b.handler.HandleChange(c)
}

// ParseChange decodes a notification payload. ok is false when the payload is
// not JSON or lacks a kind or id.
func ParseChange(payload string) (Change, bool) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, false
	}

	if c.ID == "" || (c.Kind != "node" && c.Kind != "edge") {
		return Change{}, false
	}

	return c, true
}

// nextBackoff doubles the current backoff duration with ±25% jitter, capped at maxBackoff.
func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffMultiplier
	if next > maxBackoff {
		next = maxBackoff
	}

	jitter := float64(next) * (0.75 + rand.Float64()*0.5) //nolint:gosec // jitter doesn't need crypto rand.

	return time.Duration(jitter)
}
