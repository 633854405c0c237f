package ticket

import (
	"fmt"
	"strconv"
)

// ID uniquely identifies a ticket for the lifetime of the process.
type ID uint64

// String renders the id as TicketId(n).
func (id ID) String() string {
	return "TicketId(" + strconv.FormatUint(uint64(id), 10) + ")"
}

// ParseID parses the decimal form of an id as it appears in URLs and CLI
// arguments.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ticket id %q", s)
	}
	return ID(n), nil
}

// Status is the lifecycle state of a ticket.
type Status string

const (
	// StatusToDo is the status of every newly created ticket.
	StatusToDo Status = "ToDo"
	// StatusInProgress means someone is working on the ticket.
	StatusInProgress Status = "InProgress"
	// StatusDone means the ticket is finished.
	StatusDone Status = "Done"
)

// Statuses lists every valid status in declaration order.
var Statuses = []Status{StatusToDo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus converts the exact status name into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid status %q (want ToDo, InProgress or Done)", s)
	}
	return status, nil
}

// Ticket is a point-in-time copy of a stored ticket.
type Ticket struct {
	ID          ID     `json:"id" cbor:"id"`
	Title       string `json:"title" cbor:"title"`
	Description string `json:"description" cbor:"description"`
	Status      Status `json:"status" cbor:"status"`
}

func (t Ticket) String() string {
	return fmt.Sprintf("Ticket { id: %s, title: %s, description: %s, status: %s }",
		t.ID, t.Title, t.Description, t.Status)
}

// Draft is the input for creating a ticket. It has no identity yet.
type Draft struct {
	Title       string `json:"title" cbor:"title"`
	Description string `json:"description" cbor:"description"`
}

// Patch replaces all mutable fields of an existing ticket.
type Patch struct {
	Title       string `json:"title" cbor:"title"`
	Description string `json:"description" cbor:"description"`
	Status      Status `json:"status" cbor:"status"`
}

// Apply overwrites the mutable fields of t with the patch. The id is left
// untouched.
func (p Patch) Apply(t *Ticket) {
	t.Title = p.Title
	t.Description = p.Description
	t.Status = p.Status
}
