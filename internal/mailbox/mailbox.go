// Package mailbox drives the ticket dispatch contract by message passing.
// Each Request carries its own reply channel; the server answers on that
// channel and nothing else, so concurrent callers never see each other's
// results.
package mailbox

import (
	"context"
	"sync"

	"github.com/dreamware/ticketd/internal/dispatch"
)

// Dispatcher runs commands. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dispatch.Command) dispatch.Result
}

// Request pairs a command with the channel its result is sent on. Reply
// must have room for one value; the server never waits for a reader.
type Request struct {
	Command dispatch.Command
	Reply   chan<- dispatch.Result
}

// Serve receives requests until ctx is cancelled or requests is closed.
// Each request is handled on its own goroutine so a slow ticket does not
// hold up the rest. Serve returns after every started request has replied.
func Serve(ctx context.Context, d Dispatcher, requests <-chan Request) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := d.Dispatch(context.WithoutCancel(ctx), req.Command)
				// Non-blocking: a caller that gave up leaves a
				// buffered channel nobody reads.
				select {
				case req.Reply <- res:
				default:
				}
			}()
		}
	}
}

// Call submits cmd and waits for its result. It returns ctx.Err() if ctx
// ends before the request is accepted or answered.
func Call(ctx context.Context, requests chan<- Request, cmd dispatch.Command) (dispatch.Result, error) {
	reply := make(chan dispatch.Result, 1)

	select {
	case requests <- Request{Command: cmd, Reply: reply}:
	case <-ctx.Done():
		return dispatch.Result{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return dispatch.Result{}, ctx.Err()
	}
}
