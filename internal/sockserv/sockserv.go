// Package sockserv serves the ticket dispatch contract over raw stream
// sockets. Each connection carries exactly one exchange: the client writes
// one CBOR Request, the server writes one CBOR Response and closes the
// connection. CBOR is self-delimiting, so no further framing is needed.
//
// A Server can accept on any number of listeners (TCP and Unix mixed) at
// the same time; all of them drive the same Dispatcher.
package sockserv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/ticketd/internal/codec"
	"github.com/dreamware/ticketd/internal/dispatch"
	"github.com/dreamware/ticketd/internal/ticket"
)

// Actions understood by the server.
const (
	ActionCreate = "create"
	ActionFetch  = "fetch"
	ActionUpdate = "update"
	ActionList   = "list"
	ActionStats  = "stats"
)

// Request is the wire form of a client request. Fields not used by Action
// are ignored.
type Request struct {
	Action      string        `cbor:"action"`
	ID          ticket.ID     `cbor:"id,omitempty"`
	Title       string        `cbor:"title,omitempty"`
	Description string        `cbor:"description,omitempty"`
	Status      ticket.Status `cbor:"status,omitempty"`
}

// Response is the wire form of every reply. On success Data holds the CBOR
// encoding of the action's result: an id for create, a ticket for fetch and
// update, a list of tickets for list, and dispatch.Stats for stats.
type Response struct {
	OK    bool             `cbor:"ok"`
	Code  dispatch.Code    `cbor:"code,omitempty"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Decode unmarshals the response's Data into v.
func (r Response) Decode(v any) error {
	if !r.OK {
		return fmt.Errorf("%s: %s", r.Code, r.Error)
	}
	if len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	return codec.Unmarshal(r.Data, v)
}

// Dispatcher runs commands. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dispatch.Command) dispatch.Result
}

const (
	// readTimeout bounds how long a client may take to send its request.
	readTimeout = 30 * time.Second

	// writeTimeout bounds how long writing the response may take.
	writeTimeout = 10 * time.Second

	// maxRequestSize caps a single request. Titles and descriptions are
	// limited to a few hundred bytes, so 64 KiB is ample.
	maxRequestSize = 64 * 1024
)

// Server serves Requests from one or more listeners.
type Server struct {
	dispatcher Dispatcher
	logger     *slog.Logger

	// active tracks in-flight connections so Serve can drain them.
	active sync.WaitGroup
}

// NewServer returns a Server dispatching to d.
func NewServer(d Dispatcher, logger *slog.Logger) *Server {
	return &Server{dispatcher: d, logger: logger}
}

// Serve accepts connections on every listener concurrently until ctx is
// cancelled. It then closes the listeners, waits for in-flight connections
// to finish, and returns.
func (s *Server) Serve(ctx context.Context, listeners ...net.Listener) error {
	if len(listeners) == 0 {
		return errors.New("sockserv: no listeners")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		g.Go(func() error {
			return s.acceptLoop(gctx, l)
		})
	}

	err := g.Wait()
	s.active.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener) error {
	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	s.logger.Info("socket listener ready",
		"network", l.Addr().Network(),
		"addr", l.Addr().String(),
	)

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "addr", l.Addr().String(), "error", err)
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			// Requests already accepted run to completion during shutdown.
			s.handleConnection(context.WithoutCancel(ctx), conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var req Request
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeResponse(conn, Response{Code: dispatch.CodeInvalid, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	cmd, err := toCommand(req)
	if err != nil {
		s.writeResponse(conn, Response{Code: dispatch.CodeInvalid, Error: err.Error()})
		return
	}

	res := s.dispatcher.Dispatch(ctx, cmd)
	if res.Code != dispatch.CodeOK {
		s.logger.Debug("action failed",
			"action", req.Action,
			"code", string(res.Code),
			"error", res.Message,
		)
		s.writeResponse(conn, Response{Code: res.Code, Error: res.Message})
		return
	}

	data, err := codec.Marshal(payload(cmd.Op, res))
	if err != nil {
		s.writeResponse(conn, Response{Code: dispatch.CodeInternal, Error: "internal: marshaling response"})
		return
	}
	s.writeResponse(conn, Response{OK: true, Code: dispatch.CodeOK, Data: data})
}

// writeResponse failures are logged at debug level; the connection is
// closing regardless.
func (s *Server) writeResponse(conn net.Conn, resp Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func toCommand(req Request) (dispatch.Command, error) {
	switch req.Action {
	case ActionCreate:
		return dispatch.Command{
			Op:    dispatch.OpCreate,
			Draft: ticket.Draft{Title: req.Title, Description: req.Description},
		}, nil
	case ActionFetch:
		return dispatch.Command{Op: dispatch.OpFetch, ID: req.ID}, nil
	case ActionUpdate:
		return dispatch.Command{
			Op: dispatch.OpUpdate,
			ID: req.ID,
			Patch: ticket.Patch{
				Title:       req.Title,
				Description: req.Description,
				Status:      req.Status,
			},
		}, nil
	case ActionList:
		return dispatch.Command{Op: dispatch.OpList}, nil
	case ActionStats:
		return dispatch.Command{Op: dispatch.OpStats}, nil
	case "":
		return dispatch.Command{}, errors.New("missing required field: action")
	}
	return dispatch.Command{}, fmt.Errorf("unknown action %q", req.Action)
}

func payload(op dispatch.Op, res dispatch.Result) any {
	switch op {
	case dispatch.OpCreate:
		return res.ID
	case dispatch.OpFetch, dispatch.OpUpdate:
		return res.Ticket
	case dispatch.OpList:
		if res.Tickets == nil {
			return []ticket.Ticket{}
		}
		return res.Tickets
	case dispatch.OpStats:
		return res.Stats
	}
	return nil
}

// Listen opens a listener for addr. "unix:/path" listens on a Unix socket,
// removing a stale socket file first; anything else is a TCP address.
func Listen(addr string) (net.Listener, error) {
	network, address := SplitAddr(addr)
	if network == "unix" {
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", address, err)
		}
	}
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return l, nil
}

// SplitAddr returns the network and address encoded in addr.
func SplitAddr(addr string) (network, address string) {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		return "unix", path
	}
	return "tcp", addr
}
