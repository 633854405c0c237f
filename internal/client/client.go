// Package client talks to ticketd's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dreamware/ticketd/internal/dispatch"
	"github.com/dreamware/ticketd/internal/ticket"
)

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("ticket not found")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// CreateResponse is the body of a successful create.
type CreateResponse struct {
	ID      ticket.ID `json:"id"`
	Message string    `json:"message"`
}

// ListResponse is the body of a ticket listing.
type ListResponse struct {
	Tickets []ticket.Ticket `json:"tickets"`
	Count   int             `json:"count"`
}

// Client is a ticketd HTTP client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the server at baseURL, e.g.
// "http://127.0.0.1:3000". Requests have no client-side timeout of their
// own; the context passed to each call bounds it.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Create stores a new ticket and returns its id.
func (c *Client) Create(ctx context.Context, draft ticket.Draft) (ticket.ID, error) {
	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, "/tickets", draft, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Fetch returns ticket id.
func (c *Client) Fetch(ctx context.Context, id ticket.ID) (ticket.Ticket, error) {
	var out ticket.Ticket
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tickets/%d", uint64(id)), nil, &out)
	return out, err
}

// Update replaces the mutable fields of ticket id and returns the result.
func (c *Client) Update(ctx context.Context, id ticket.ID, patch ticket.Patch) (ticket.Ticket, error) {
	var out ticket.Ticket
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/tickets/%d", uint64(id)), patch, &out)
	return out, err
}

// List returns every ticket ordered by id.
func (c *Client) List(ctx context.Context) ([]ticket.Ticket, error) {
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, "/tickets", nil, &out); err != nil {
		return nil, err
	}
	return out.Tickets, nil
}

// Stats returns the server's operation and storage counters.
func (c *Client) Stats(ctx context.Context) (dispatch.Stats, error) {
	var out dispatch.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// Health returns nil if the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &msg) != nil || msg.Message == "" {
			msg.Message = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
