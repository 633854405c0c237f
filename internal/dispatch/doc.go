// Package dispatch is the boundary between ticketd's transports and the
// ticket store. Every transport (HTTP, raw CBOR sockets, in-process
// mailboxes) decodes its input into ticket values, calls a Dispatcher, and
// turns the outcome into its own wire format.
//
// # Responsibilities
//
// Validation: inputs are checked before they reach the store
//   - Title must be non-empty and at most MaxTitleLen bytes
//   - Description must be at most MaxDescriptionLen bytes
//   - Patch status must be ToDo, InProgress or Done
//
// Classification: every error maps to exactly one Code
//   - CodeInvalid:  rejected input (ErrInvalid)
//   - CodeNotFound: no such ticket (storage.ErrNotFound)
//   - CodeInternal: poisoned lock, cancelled context, anything unexpected
//
// Side effects after the store call returns:
//   - Operation counters, updated atomically
//   - A lifecycle event through the configured events.Publisher; a failed
//     publish is logged and otherwise ignored
//
// # Message-oriented transports
//
// Transports that move whole requests around (sockets, channels) use
// Command and Result instead of the typed methods:
//
//	res := d.Dispatch(ctx, dispatch.Command{Op: dispatch.OpFetch, ID: 1})
//	switch res.Code {
//	case dispatch.CodeOK:
//	    // res.Ticket is set
//	case dispatch.CodeNotFound:
//	    // report "not found"
//	}
//
// Dispatch never panics on bad input and never blocks on anything but the
// store's own locks.
package dispatch
