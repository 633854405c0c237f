package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ticketd/internal/events"
	"github.com/dreamware/ticketd/internal/storage"
	"github.com/dreamware/ticketd/internal/ticket"
)

// recordingPublisher keeps every event it receives.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func newTestDispatcher(t *testing.T, pub events.Publisher) (*Dispatcher, *storage.Store, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := storage.NewStore()
	return New(store, pub, logger), store, &logs
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: CodeOK},
		{name: "invalid", err: fmt.Errorf("%w: title", ErrInvalid), want: CodeInvalid},
		{name: "not found", err: storage.ErrNotFound, want: CodeNotFound},
		{name: "wrapped not found", err: fmt.Errorf("fetch: %w", storage.ErrNotFound), want: CodeNotFound},
		{name: "poisoned", err: storage.ErrPoisoned, want: CodeInternal},
		{name: "cancelled", err: context.Canceled, want: CodeInternal},
		{name: "unknown", err: errors.New("boom"), want: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestValidation(t *testing.T) {
	long := strings.Repeat("x", MaxTitleLen+1)
	longDesc := strings.Repeat("x", MaxDescriptionLen+1)

	tests := []struct {
		name    string
		patch   ticket.Patch
		wantErr bool
	}{
		{name: "valid", patch: ticket.Patch{Title: "t", Description: "d", Status: ticket.StatusDone}},
		{name: "empty description ok", patch: ticket.Patch{Title: "t", Status: ticket.StatusToDo}},
		{name: "title at limit", patch: ticket.Patch{Title: long[:MaxTitleLen], Status: ticket.StatusToDo}},
		{name: "empty title", patch: ticket.Patch{Title: "", Status: ticket.StatusToDo}, wantErr: true},
		{name: "title too long", patch: ticket.Patch{Title: long, Status: ticket.StatusToDo}, wantErr: true},
		{name: "description too long", patch: ticket.Patch{Title: "t", Description: longDesc, Status: ticket.StatusToDo}, wantErr: true},
		{name: "missing status", patch: ticket.Patch{Title: "t"}, wantErr: true},
		{name: "unknown status", patch: ticket.Patch{Title: "t", Status: "Closed"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePatch(tt.patch)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorIs(t, ValidateDraft(ticket.Draft{}), ErrInvalid)
	assert.NoError(t, ValidateDraft(ticket.Draft{Title: "t1", Description: "d1"}))
}

func TestDispatcherScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("create, fetch, update, fetch", func(t *testing.T) {
		pub := &recordingPublisher{}
		d, _, _ := newTestDispatcher(t, pub)

		id, err := d.Create(ctx, ticket.Draft{Title: "t1", Description: "d1"})
		require.NoError(t, err)
		assert.Equal(t, ticket.ID(1), id)

		got, err := d.Fetch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ticket.Ticket{ID: 1, Title: "t1", Description: "d1", Status: ticket.StatusToDo}, got)

		updated, err := d.Update(ctx, id, ticket.Patch{Title: "t2", Description: "d2", Status: ticket.StatusDone})
		require.NoError(t, err)
		want := ticket.Ticket{ID: 1, Title: "t2", Description: "d2", Status: ticket.StatusDone}
		assert.Equal(t, want, updated)

		got, err = d.Fetch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		require.Len(t, pub.events, 2)
		assert.Equal(t, events.TicketCreated, pub.events[0].Type)
		assert.Equal(t, ticket.StatusToDo, pub.events[0].Ticket.Status)
		assert.Equal(t, events.TicketUpdated, pub.events[1].Type)
		assert.Equal(t, want, pub.events[1].Ticket)
	})

	t.Run("fetch and update of unknown id", func(t *testing.T) {
		pub := &recordingPublisher{}
		d, store, _ := newTestDispatcher(t, pub)

		_, err := d.Fetch(ctx, 999)
		assert.Equal(t, CodeNotFound, Classify(err))

		_, err = d.Update(ctx, 999, ticket.Patch{Title: "t", Status: ticket.StatusDone})
		assert.Equal(t, CodeNotFound, Classify(err))
		assertEmpty(t, store)
		assert.Empty(t, pub.events)

		stats, err := d.Stats()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), stats.Ops.NotFound)
		assert.Equal(t, uint64(0), stats.Ops.Faults)
	})

	t.Run("invalid input never reaches the store", func(t *testing.T) {
		d, store, _ := newTestDispatcher(t, nil)

		_, err := d.Create(ctx, ticket.Draft{Title: ""})
		assert.Equal(t, CodeInvalid, Classify(err))
		assertEmpty(t, store)

		id, err := d.Create(ctx, ticket.Draft{Title: "ok"})
		require.NoError(t, err)

		_, err = d.Update(ctx, id, ticket.Patch{Title: "ok", Status: "Closed"})
		assert.Equal(t, CodeInvalid, Classify(err))

		got, err := d.Fetch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ticket.StatusToDo, got.Status)
	})

	t.Run("publish failure does not fail the request", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("redis down")}
		d, _, logs := newTestDispatcher(t, pub)

		id, err := d.Create(ctx, ticket.Draft{Title: "t1"})
		require.NoError(t, err)

		_, err = d.Fetch(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, logs.String(), "publishing ticket event failed")
		assert.Contains(t, logs.String(), "redis down")
	})

	t.Run("cancelled context", func(t *testing.T) {
		d, store, _ := newTestDispatcher(t, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := d.Create(cctx, ticket.Draft{Title: "t1"})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, CodeInternal, Classify(err))
		assertEmpty(t, store)
	})

	t.Run("poisoned ticket is an internal fault", func(t *testing.T) {
		d, store, logs := newTestDispatcher(t, nil)

		id, err := d.Create(ctx, ticket.Draft{Title: "t1"})
		require.NoError(t, err)
		h, err := store.Get(id)
		require.NoError(t, err)
		_ = h.Modify(func(*ticket.Ticket) { panic("boom") })

		_, err = d.Fetch(ctx, id)
		assert.Equal(t, CodeInternal, Classify(err))

		res := d.Dispatch(ctx, Command{Op: OpUpdate, ID: id, Patch: ticket.Patch{Title: "x", Status: ticket.StatusDone}})
		assert.Equal(t, CodeInternal, res.Code)
		assert.Equal(t, "internal error", res.Message)

		stats, err := d.Stats()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), stats.Ops.Faults)
		assert.Contains(t, logs.String(), "ticket store fault")
	})
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t, nil)

	res := d.Dispatch(ctx, Command{Op: OpCreate, Draft: ticket.Draft{Title: "t1", Description: "d1"}})
	require.Equal(t, CodeOK, res.Code)
	require.NoError(t, res.Err())
	assert.Equal(t, ticket.ID(1), res.ID)

	res = d.Dispatch(ctx, Command{Op: OpFetch, ID: 1})
	require.Equal(t, CodeOK, res.Code)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, "t1", res.Ticket.Title)

	res = d.Dispatch(ctx, Command{Op: OpUpdate, ID: 1, Patch: ticket.Patch{Title: "t2", Status: ticket.StatusInProgress}})
	require.Equal(t, CodeOK, res.Code)
	assert.Equal(t, ticket.StatusInProgress, res.Ticket.Status)

	res = d.Dispatch(ctx, Command{Op: OpList})
	require.Equal(t, CodeOK, res.Code)
	assert.Len(t, res.Tickets, 1)

	res = d.Dispatch(ctx, Command{Op: OpStats})
	require.Equal(t, CodeOK, res.Code)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 1, res.Stats.Storage.Tickets)
	assert.Equal(t, uint64(1), res.Stats.Ops.Creates)
	assert.Equal(t, 1, res.Stats.Storage.ByStatus[ticket.StatusInProgress])

	res = d.Dispatch(ctx, Command{Op: OpFetch, ID: 42})
	assert.Equal(t, CodeNotFound, res.Code)
	assert.Equal(t, "Ticket not found", res.Message)
	assert.Error(t, res.Err())

	res = d.Dispatch(ctx, Command{Op: "delete", ID: 1})
	assert.Equal(t, CodeInvalid, res.Code)
	assert.Contains(t, res.Message, "unknown operation")
}

func assertEmpty(t *testing.T, store *storage.Store) {
	t.Helper()
	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
