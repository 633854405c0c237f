package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/ticketd/internal/dispatch"
	"github.com/dreamware/ticketd/internal/events"
	"github.com/dreamware/ticketd/internal/ticket"
)

// maxBodyBytes bounds every request body the API decodes.
const maxBodyBytes = 64 << 10

// requestIDHeader carries the per-request correlation id.
const requestIDHeader = "X-Request-ID"

const greeting = "Hello, Welcome to TicketStore!"

type createResponse struct {
	ID      ticket.ID `json:"id"`
	Message string    `json:"message"`
}

type listResponse struct {
	Tickets []ticket.Ticket `json:"tickets"`
	Count   int             `json:"count"`
}

type healthResponse struct {
	Status string         `json:"status"`
	Events *events.Health `json:"events,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// api binds HTTP handlers to a dispatcher.
type api struct {
	d       *dispatch.Dispatcher
	monitor *events.Monitor // nil when events are disabled
	logger  *slog.Logger
}

// newHandler builds the complete HTTP surface of ticketd.
//
// Routes:
//   - GET  /health              - liveness and event sink state
//   - POST /tickets             - create a ticket
//   - GET  /tickets             - list tickets in id order
//   - GET  /tickets/{id}        - fetch one ticket
//   - PATCH /tickets/{id}       - replace title, description and status
//   - GET  /stats               - operation counters and ticket counts
//   - GET  /                    - greeting
//   - POST /create, GET /get?id=, PATCH /patch?id= - compatibility routes
//
// The compatibility routes answer /get with the ticket's display form and
// /patch with a confirmation, both as {"message": "..."}. Every error
// response, including unknown paths, has the body {"message": "..."}.
func newHandler(d *dispatch.Dispatcher, monitor *events.Monitor, logger *slog.Logger) http.Handler {
	a := &api{d: d, monitor: monitor, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeMessage(w, http.StatusNotFound, "not found")
			return
		}
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeMessage(w, http.StatusOK, greeting)
	})
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/tickets", a.handleTickets)
	mux.HandleFunc("/tickets/", a.handleTicket)
	mux.HandleFunc("/stats", a.handleStats)

	mux.HandleFunc("/create", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		a.create(w, r)
	})
	mux.HandleFunc("/get", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		id, ok := queryID(w, r)
		if !ok {
			return
		}
		if t, ok := a.fetch(w, r, id); ok {
			writeMessage(w, http.StatusOK, t.String())
		}
	})
	mux.HandleFunc("/patch", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPatch) {
			return
		}
		id, ok := queryID(w, r)
		if !ok {
			return
		}
		if _, ok := a.update(w, r, id); ok {
			writeMessage(w, http.StatusOK, fmt.Sprintf("Ticket %s updated", id))
		}
	})

	return a.withRequestLog(mux)
}

// handleTickets serves the collection: POST creates, GET lists.
func (a *api) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.create(w, r)
	case http.MethodGet:
		a.list(w, r)
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTicket serves /tickets/{id}.
func (a *api) handleTicket(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/tickets/")
	if raw == "" || strings.Contains(raw, "/") {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}

	id, err := ticket.ParseID(raw)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if t, ok := a.fetch(w, r, id); ok {
			writeJSON(w, http.StatusOK, t)
		}
	case http.MethodPatch:
		if t, ok := a.update(w, r, id); ok {
			writeJSON(w, http.StatusOK, t)
		}
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleHealth always answers 200 while the process serves requests. An
// unhealthy event sink is reported in the body but does not fail the check.
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if a.monitor != nil {
		h := a.monitor.Health()
		resp.Events = &h
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := a.d.Stats()
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	var draft ticket.Draft
	if !decodeBody(w, r, &draft) {
		return
	}
	id, err := a.d.Create(r.Context(), draft)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		ID:      id,
		Message: fmt.Sprintf("Ticket created with ID: %d", uint64(id)),
	})
}

// fetch and update write the error response themselves and report whether
// the caller should write a success body.
func (a *api) fetch(w http.ResponseWriter, r *http.Request, id ticket.ID) (ticket.Ticket, bool) {
	t, err := a.d.Fetch(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return ticket.Ticket{}, false
	}
	return t, true
}

func (a *api) update(w http.ResponseWriter, r *http.Request, id ticket.ID) (ticket.Ticket, bool) {
	var patch ticket.Patch
	if !decodeBody(w, r, &patch) {
		return ticket.Ticket{}, false
	}
	t, err := a.d.Update(r.Context(), id, patch)
	if err != nil {
		a.writeError(w, err)
		return ticket.Ticket{}, false
	}
	return t, true
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	tickets, err := a.d.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if tickets == nil {
		tickets = []ticket.Ticket{}
	}
	writeJSON(w, http.StatusOK, listResponse{Tickets: tickets, Count: len(tickets)})
}

// writeError maps a dispatcher error to a status code. Internal details are
// logged by the dispatcher and never reach the client.
func (a *api) writeError(w http.ResponseWriter, err error) {
	switch dispatch.Classify(err) {
	case dispatch.CodeInvalid:
		writeMessage(w, http.StatusBadRequest, err.Error())
	case dispatch.CodeNotFound:
		writeMessage(w, http.StatusNotFound, "Ticket not found")
	default:
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// withRequestLog assigns each request an id and logs it once it completes.
func (a *api) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		a.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", id,
		)
	})
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func queryID(w http.ResponseWriter, r *http.Request) (ticket.ID, bool) {
	id, err := ticket.ParseID(r.URL.Query().Get("id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid ticket id")
		return 0, false
	}
	return id, true
}

// decodeBody reads a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}
