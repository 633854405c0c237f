// Package storage is the in-memory ticket store at the centre of ticketd.
// It owns the id -> ticket index and the locking discipline that lets
// unrelated tickets be read and written in parallel.
//
// # Overview
//
// A Store maps ticket ids to Handles. The Store decides which tickets exist;
// a Handle owns one ticket's fields. Callers look a ticket up once and can
// then read or write it through the Handle without going back to the Store.
// Handles are ordinary Go pointers, so a Handle lives as long as its longest
// holder, whether that is the Store or a request that kept it across a
// blocking call.
//
// # Architecture
//
// Two independent locks, taken in a fixed order:
//
//	┌─────────────────────────────────────┐
//	│  Store                              │
//	│    index lock (RW)                  │
//	│    map[ticket.ID]*Handle            │
//	└─────────────────────────────────────┘
//	                 │ lookup / insert, lock released
//	                 ▼
//	┌──────────┐ ┌──────────┐ ┌──────────┐
//	│ Handle 1 │ │ Handle 2 │ │ Handle 3 │
//	│ lock(RW) │ │ lock(RW) │ │ lock(RW) │
//	│ fields   │ │ fields   │ │ fields   │
//	└──────────┘ └──────────┘ └──────────┘
//
// # Concurrency and Thread Safety
//
// Locking Strategy:
//   - Get takes the index lock shared; Add takes it exclusive
//   - Only map operations run under the index lock, never I/O or callbacks
//   - Read takes the record lock shared; Write and Modify take it exclusive
//   - The index lock is released before any record lock is acquired, so
//     the two tiers never nest and cannot deadlock
//
// Consistency Guarantees:
//   - Writes to one ticket are linearizable with respect to each other and
//     to reads of that ticket
//   - A Write replaces all mutable fields in one critical section, so
//     readers never see a torn ticket
//   - No ordering across tickets; List and Stats are per-ticket snapshots
//   - An Add is visible to a Get once the caller has observed the new id
//
// Progress:
//   - Operations on different tickets never wait on each other's record
//     locks
//   - A slow writer on one ticket holds only that ticket's lock
//
// # Error Handling
//
// ErrNotFound: no ticket has the id
//   - Returned by Get, Fetch and Update
//   - An expected outcome, not a fault
//   - Update never creates a ticket
//
// ErrPoisoned: a lock was poisoned
//   - A Modify callback panicked while holding the record lock
//   - Every later call on that ticket fails with ErrPoisoned
//   - Other tickets and the index keep working
//   - Use errors.Is; the returned error wraps the panic value
//
// # Usage Examples
//
//	store := storage.NewStore()
//
//	id, err := store.Add(ticket.Draft{Title: "t1", Description: "d1"})
//	if err != nil {
//	    return err
//	}
//
//	h, err := store.Get(id)
//	if errors.Is(err, storage.ErrNotFound) {
//	    // report "not found"
//	}
//
//	if err := h.Write(ticket.Patch{Title: "t2", Description: "d2", Status: ticket.StatusDone}); err != nil {
//	    return err
//	}
//
//	current, err := h.Read()
//
// # Testing
//
// Running tests:
//
//	go test ./internal/storage/... -cover
//	go test -race ./internal/storage/...
package storage
