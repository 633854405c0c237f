package dispatch

import (
	"context"
	"fmt"

	"github.com/dreamware/ticketd/internal/ticket"
)

// Op names an operation carried by a Command.
type Op string

const (
	OpCreate Op = "create"
	OpFetch  Op = "fetch"
	OpUpdate Op = "update"
	OpList   Op = "list"
	OpStats  Op = "stats"
)

// Command is a self-contained request for transports that pass requests as
// messages. Only the fields relevant to Op are read.
type Command struct {
	Op    Op
	ID    ticket.ID
	Draft ticket.Draft
	Patch ticket.Patch
}

// Result is the outcome of a Command. Message is empty on success and holds
// a human-readable reason otherwise.
type Result struct {
	Code    Code
	Message string
	ID      ticket.ID
	Ticket  *ticket.Ticket
	Tickets []ticket.Ticket
	Stats   *Stats
}

// Err returns nil for a successful result.
func (r Result) Err() error {
	if r.Code == CodeOK {
		return nil
	}
	return fmt.Errorf("%s: %s", r.Code, r.Message)
}

// Dispatch runs cmd and packages the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Result {
	switch cmd.Op {
	case OpCreate:
		id, err := d.Create(ctx, cmd.Draft)
		if err != nil {
			return failure(err)
		}
		return Result{Code: CodeOK, ID: id}

	case OpFetch:
		t, err := d.Fetch(ctx, cmd.ID)
		if err != nil {
			return failure(err)
		}
		return Result{Code: CodeOK, ID: t.ID, Ticket: &t}

	case OpUpdate:
		t, err := d.Update(ctx, cmd.ID, cmd.Patch)
		if err != nil {
			return failure(err)
		}
		return Result{Code: CodeOK, ID: t.ID, Ticket: &t}

	case OpList:
		tickets, err := d.List(ctx)
		if err != nil {
			return failure(err)
		}
		return Result{Code: CodeOK, Tickets: tickets}

	case OpStats:
		stats, err := d.Stats()
		if err != nil {
			return failure(err)
		}
		return Result{Code: CodeOK, Stats: &stats}
	}

	return Result{Code: CodeInvalid, Message: fmt.Sprintf("unknown operation %q", cmd.Op)}
}

// failure hides internal detail from callers: only invalid and not-found
// results carry the underlying message.
func failure(err error) Result {
	code := Classify(err)
	switch code {
	case CodeNotFound:
		return Result{Code: code, Message: "Ticket not found"}
	case CodeInvalid:
		return Result{Code: code, Message: err.Error()}
	}
	return Result{Code: code, Message: "internal error"}
}
