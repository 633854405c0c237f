package storage

import (
	"errors"

	"golang.org/x/exp/slices"

	"github.com/dreamware/ticketd/internal/ticket"
)

// ErrNotFound is returned when no ticket has the requested id.
var ErrNotFound = errors.New("ticket not found")

// ErrPoisoned is returned when a lock was left unusable by a critical section
// that panicked. It signals an internal fault, never a missing ticket.
var ErrPoisoned = errors.New("lock poisoned")

// Stats contains aggregate counts over every stored ticket.
type Stats struct {
	Tickets  int                   `json:"tickets" cbor:"tickets"`
	ByStatus map[ticket.Status]int `json:"by_status" cbor:"by_status"`
}

// Store indexes tickets by id. The index lock guards only the id -> handle
// map and is held for O(1) map work; each ticket's fields are guarded by its
// Handle. The index lock is always released before a record lock is taken.
type Store struct {
	ids   ticket.Allocator
	index rwLock
	data  map[ticket.ID]*Handle // guarded by index
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data: make(map[ticket.ID]*Handle),
	}
}

// Add stores a new ticket built from draft with status ToDo and returns its
// id. The id is allocated and the record built before the index lock is
// taken.
func (s *Store) Add(draft ticket.Draft) (ticket.ID, error) {
	id := s.ids.Next()
	h := newHandle(id, draft)

	if err := s.index.write(func() {
		s.data[id] = h
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns the handle for id, or ErrNotFound. The record itself is not
// locked.
func (s *Store) Get(id ticket.ID) (*Handle, error) {
	var (
		h  *Handle
		ok bool
	)
	if err := s.index.read(func() {
		h, ok = s.data[id]
	}); err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// Len returns the number of stored tickets. A poisoned index returns
// ErrPoisoned rather than a count.
func (s *Store) Len() (int, error) {
	n := 0
	if err := s.index.read(func() {
		n = len(s.data)
	}); err != nil {
		return 0, err
	}
	return n, nil
}

// IDs returns every stored id in ascending order.
func (s *Store) IDs() ([]ticket.ID, error) {
	var ids []ticket.ID
	if err := s.index.read(func() {
		ids = make([]ticket.ID, 0, len(s.data))
		for id := range s.data {
			ids = append(ids, id)
		}
	}); err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// List returns a copy of every ticket ordered by id. Handles are collected
// under the index lock; each ticket is read after that lock is released, so
// the result is a per-ticket snapshot rather than a global one.
func (s *Store) List() ([]ticket.Ticket, error) {
	var handles []*Handle
	if err := s.index.read(func() {
		handles = make([]*Handle, 0, len(s.data))
		for _, h := range s.data {
			handles = append(handles, h)
		}
	}); err != nil {
		return nil, err
	}

	slices.SortFunc(handles, func(a, b *Handle) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})

	out := make([]ticket.Ticket, 0, len(handles))
	for _, h := range handles {
		t, err := h.Read()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Stats counts tickets in total and per status. Poisoned records are
// counted in the total but not by status.
func (s *Store) Stats() (Stats, error) {
	tickets, handles := 0, []*Handle(nil)
	if err := s.index.read(func() {
		tickets = len(s.data)
		handles = make([]*Handle, 0, len(s.data))
		for _, h := range s.data {
			handles = append(handles, h)
		}
	}); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Tickets:  tickets,
		ByStatus: make(map[ticket.Status]int, len(ticket.Statuses)),
	}
	for _, status := range ticket.Statuses {
		stats.ByStatus[status] = 0
	}
	for _, h := range handles {
		t, err := h.Read()
		if err != nil {
			continue
		}
		stats.ByStatus[t.Status]++
	}
	return stats, nil
}

// Create is Add under the name the dispatch layer uses.
func (s *Store) Create(draft ticket.Draft) (ticket.ID, error) {
	return s.Add(draft)
}

// Fetch looks up id and reads it.
func (s *Store) Fetch(id ticket.ID) (ticket.Ticket, error) {
	h, err := s.Get(id)
	if err != nil {
		return ticket.Ticket{}, err
	}
	return h.Read()
}

// Update looks up id and replaces its mutable fields. A missing id returns
// ErrNotFound and creates nothing.
func (s *Store) Update(id ticket.ID, patch ticket.Patch) error {
	h, err := s.Get(id)
	if err != nil {
		return err
	}
	return h.Write(patch)
}
