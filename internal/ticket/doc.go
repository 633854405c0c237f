// Package ticket defines the data model shared by every layer of ticketd:
// ticket identities, the lifecycle status enumeration, the ticket record
// itself, and the two inputs that create or replace one (Draft and Patch).
//
// # Identity
//
// An ID is an opaque, totally ordered 64-bit value. IDs are produced only by
// an Allocator, which hands out 1, 2, 3, ... in issuance order and never
// repeats a value for the lifetime of the process. IDs are never reused, even
// for tickets that are conceptually gone.
//
// # Status
//
// Status is a closed set of three values:
//
//	ToDo        - newly created, not started
//	InProgress  - being worked on
//	Done        - finished
//
// Any status may move to any other; this package does not validate
// transitions. Text only becomes a Status through ParseStatus or through
// JSON/CBOR decoding followed by Valid, so unknown values are rejected at the
// boundary rather than stored.
//
// # Drafts and patches
//
// A Draft carries the fields a caller supplies when creating a ticket. A
// Patch replaces every mutable field of an existing ticket at once: it is a
// full replacement, not a sparse update, so an empty Title in a Patch means
// "set the title to empty", not "leave the title alone".
//
// # Thread safety
//
// Values in this package are plain data and carry no locks. Allocator is the
// exception: it is safe for concurrent use and is the only type here meant to
// be shared between goroutines.
package ticket
