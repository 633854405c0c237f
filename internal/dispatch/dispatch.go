package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dreamware/ticketd/internal/events"
	"github.com/dreamware/ticketd/internal/storage"
	"github.com/dreamware/ticketd/internal/ticket"
)

const (
	// MaxTitleLen is the longest accepted title, in bytes.
	MaxTitleLen = 50
	// MaxDescriptionLen is the longest accepted description, in bytes.
	MaxDescriptionLen = 500
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid request")

// Code classifies the outcome of a dispatched operation.
type Code string

const (
	CodeOK       Code = "ok"
	CodeInvalid  Code = "invalid"
	CodeNotFound Code = "not_found"
	CodeInternal Code = "internal"
)

// Classify maps an error returned by a Dispatcher to its Code.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalid):
		return CodeInvalid
	case errors.Is(err, storage.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// OperationStats counts dispatched operations since startup.
type OperationStats struct {
	Creates  uint64 `json:"creates" cbor:"creates"`
	Fetches  uint64 `json:"fetches" cbor:"fetches"`
	Updates  uint64 `json:"updates" cbor:"updates"`
	Lists    uint64 `json:"lists" cbor:"lists"`
	NotFound uint64 `json:"not_found" cbor:"not_found"`
	Faults   uint64 `json:"faults" cbor:"faults"`
}

// Stats combines operation counters with store counts.
type Stats struct {
	Ops     OperationStats `json:"operations" cbor:"operations"`
	Storage storage.Stats  `json:"storage" cbor:"storage"`
}

// Dispatcher validates requests, runs them against a Store, and records the
// outcome. It is safe for concurrent use.
type Dispatcher struct {
	store     *storage.Store
	publisher events.Publisher
	logger    *slog.Logger
	ops       OperationStats // updated with sync/atomic
}

// New returns a Dispatcher over store. A nil publisher discards events.
func New(store *storage.Store, publisher events.Publisher, logger *slog.Logger) *Dispatcher {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Create validates draft and stores a new ticket.
func (d *Dispatcher) Create(ctx context.Context, draft ticket.Draft) (ticket.ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, d.observe(err)
	}
	if err := ValidateDraft(draft); err != nil {
		return 0, err
	}

	atomic.AddUint64(&d.ops.Creates, 1)
	id, err := d.store.Create(draft)
	if err != nil {
		return 0, d.observe(err)
	}

	d.publish(ctx, events.Event{
		Type:   events.TicketCreated,
		Ticket: ticket.Ticket{ID: id, Title: draft.Title, Description: draft.Description, Status: ticket.StatusToDo},
	})
	return id, nil
}

// Fetch returns the current state of ticket id.
func (d *Dispatcher) Fetch(ctx context.Context, id ticket.ID) (ticket.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return ticket.Ticket{}, d.observe(err)
	}

	atomic.AddUint64(&d.ops.Fetches, 1)
	t, err := d.store.Fetch(id)
	if err != nil {
		return ticket.Ticket{}, d.observe(err)
	}
	return t, nil
}

// Update validates patch and replaces the mutable fields of ticket id. It
// returns the ticket as written.
func (d *Dispatcher) Update(ctx context.Context, id ticket.ID, patch ticket.Patch) (ticket.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return ticket.Ticket{}, d.observe(err)
	}
	if err := ValidatePatch(patch); err != nil {
		return ticket.Ticket{}, err
	}

	atomic.AddUint64(&d.ops.Updates, 1)
	h, err := d.store.Get(id)
	if err != nil {
		return ticket.Ticket{}, d.observe(err)
	}

	var written ticket.Ticket
	if err := h.Modify(func(t *ticket.Ticket) {
		patch.Apply(t)
		written = *t
	}); err != nil {
		return ticket.Ticket{}, d.observe(err)
	}

	d.publish(ctx, events.Event{Type: events.TicketUpdated, Ticket: written})
	return written, nil
}

// List returns every ticket ordered by id.
func (d *Dispatcher) List(ctx context.Context) ([]ticket.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.observe(err)
	}

	atomic.AddUint64(&d.ops.Lists, 1)
	tickets, err := d.store.List()
	if err != nil {
		return nil, d.observe(err)
	}
	return tickets, nil
}

// Stats returns operation counters and store counts.
func (d *Dispatcher) Stats() (Stats, error) {
	storageStats, err := d.store.Stats()
	if err != nil {
		return Stats{}, d.observe(err)
	}
	return Stats{
		Ops: OperationStats{
			Creates:  atomic.LoadUint64(&d.ops.Creates),
			Fetches:  atomic.LoadUint64(&d.ops.Fetches),
			Updates:  atomic.LoadUint64(&d.ops.Updates),
			Lists:    atomic.LoadUint64(&d.ops.Lists),
			NotFound: atomic.LoadUint64(&d.ops.NotFound),
			Faults:   atomic.LoadUint64(&d.ops.Faults),
		},
		Storage: storageStats,
	}, nil
}

// observe counts a store-side failure and logs faults.
func (d *Dispatcher) observe(err error) error {
	switch Classify(err) {
	case CodeNotFound:
		atomic.AddUint64(&d.ops.NotFound, 1)
	case CodeInternal:
		atomic.AddUint64(&d.ops.Faults, 1)
		d.logger.Error("ticket store fault", "error", err)
	}
	return err
}

func (d *Dispatcher) publish(ctx context.Context, e events.Event) {
	if err := d.publisher.Publish(ctx, e); err != nil {
		d.logger.Warn("publishing ticket event failed",
			"event", string(e.Type),
			"ticket_id", uint64(e.Ticket.ID),
			"error", err,
		)
	}
}

// ValidateDraft checks the fields of a new ticket.
func ValidateDraft(draft ticket.Draft) error {
	if err := validateTitle(draft.Title); err != nil {
		return err
	}
	return validateDescription(draft.Description)
}

// ValidatePatch checks every field of a replacement.
func ValidatePatch(patch ticket.Patch) error {
	if err := validateTitle(patch.Title); err != nil {
		return err
	}
	if err := validateDescription(patch.Description); err != nil {
		return err
	}
	if !patch.Status.Valid() {
		return fmt.Errorf("%w: status %q is not one of ToDo, InProgress, Done", ErrInvalid, patch.Status)
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalid)
	}
	if len(title) > MaxTitleLen {
		return fmt.Errorf("%w: title cannot be longer than %d bytes", ErrInvalid, MaxTitleLen)
	}
	return nil
}

func validateDescription(description string) error {
	if len(description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description cannot be longer than %d bytes", ErrInvalid, MaxDescriptionLen)
	}
	return nil
}
