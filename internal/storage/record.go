package storage

import "github.com/dreamware/ticketd/internal/ticket"

// Handle is a shared reference to one stored ticket. It stays valid after
// the Store call that returned it, and any number of goroutines may hold the
// same Handle. The ticket's fields are guarded by the handle's own lock, so
// reading or writing through a Handle never touches the Store's index lock.
type Handle struct {
	id   ticket.ID
	lock rwLock

	// Guarded by lock.
	title       string
	description string
	status      ticket.Status
}

func newHandle(id ticket.ID, draft ticket.Draft) *Handle {
	return &Handle{
		id:          id,
		title:       draft.Title,
		description: draft.Description,
		status:      ticket.StatusToDo,
	}
}

// ID returns the ticket's id. It never changes, so no lock is taken.
func (h *Handle) ID() ticket.ID {
	return h.id
}

// Read returns a copy of the ticket taken under the shared record lock.
// Concurrent Reads of the same ticket proceed in parallel; a Read waits only
// for an in-progress Write on this ticket.
func (h *Handle) Read() (ticket.Ticket, error) {
	var t ticket.Ticket
	err := h.lock.read(func() {
		t = h.snapshot()
	})
	return t, err
}

// Write replaces title, description and status in one exclusive critical
// section, so no reader sees a mix of old and new fields.
func (h *Handle) Write(patch ticket.Patch) error {
	return h.lock.write(func() {
		h.title = patch.Title
		h.description = patch.Description
		h.status = patch.Status
	})
}

// Modify runs fn on a copy of the ticket under the exclusive record lock and
// commits the copy's mutable fields if fn returns normally. Changes fn makes
// to the id are discarded. If fn panics nothing is committed, the record is
// poisoned and Modify returns ErrPoisoned.
func (h *Handle) Modify(fn func(t *ticket.Ticket)) error {
	return h.lock.write(func() {
		t := h.snapshot()
		fn(&t)
		h.title = t.Title
		h.description = t.Description
		h.status = t.Status
	})
}

// Poisoned reports whether a previous Modify panicked on this ticket.
func (h *Handle) Poisoned() bool {
	return h.lock.isPoisoned()
}

// snapshot must be called with lock held in either mode.
func (h *Handle) snapshot() ticket.Ticket {
	return ticket.Ticket{
		ID:          h.id,
		Title:       h.title,
		Description: h.description,
		Status:      h.status,
	}
}
