// Package events publishes ticket lifecycle events to interested
// subscribers. Publishing happens after the store has released its locks;
// a failed publish never undoes or fails the store operation.
package events

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dreamware/ticketd/internal/ticket"
)

// Type names a lifecycle event.
type Type string

const (
	// TicketCreated is published after a ticket is added to the store.
	TicketCreated Type = "ticket.created"
	// TicketUpdated is published after a ticket's fields are replaced.
	TicketUpdated Type = "ticket.updated"
)

// Event describes one change to one ticket.
type Event struct {
	Type   Type
	Ticket ticket.Ticket
}

// Publisher delivers events. Implementations must be safe for concurrent
// use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// RedisPublisher appends events to a Redis stream with XADD.
type RedisPublisher struct {
	client redis.Cmdable
	stream string
}

// NewRedisPublisher returns a publisher writing to stream.
func NewRedisPublisher(client redis.Cmdable, stream string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream}
}

// Publish implements Publisher. Field order is fixed so consumers and tests
// see a stable entry layout.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: Values(e),
	}).Err()
}

// Values returns the stream entry fields for e.
func Values(e Event) []interface{} {
	return []interface{}{
		"event", string(e.Type),
		"ticket_id", strconv.FormatUint(uint64(e.Ticket.ID), 10),
		"title", e.Ticket.Title,
		"description", e.Ticket.Description,
		"status", string(e.Ticket.Status),
	}
}

// Dial parses a redis:// or rediss:// URL and returns a client. The
// connection is established lazily; call Ping to verify it.
func Dial(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}
