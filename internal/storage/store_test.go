package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ticketd/internal/ticket"
)

// TestStore tests the basic store operations
func TestStore(t *testing.T) {
	t.Run("new store is empty", func(t *testing.T) {
		store := NewStore()

		if mustLen(t, store) != 0 {
			t.Errorf("Expected empty store, got %d tickets", mustLen(t, store))
		}

		_, err := store.Get(1)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create then fetch", func(t *testing.T) {
		store := NewStore()

		id, err := store.Create(ticket.Draft{Title: "t1", Description: "d1"})
		if err != nil {
			t.Fatalf("Failed to create ticket: %v", err)
		}
		if id != ticket.ID(1) {
			t.Errorf("Expected first id TicketId(1), got %s", id)
		}

		got, err := store.Fetch(id)
		if err != nil {
			t.Fatalf("Failed to fetch ticket: %v", err)
		}

		want := ticket.Ticket{ID: 1, Title: "t1", Description: "d1", Status: ticket.StatusToDo}
		if got != want {
			t.Errorf("Expected %+v, got %+v", want, got)
		}
	})

	t.Run("update then fetch", func(t *testing.T) {
		store := NewStore()

		id, _ := store.Create(ticket.Draft{Title: "t1", Description: "d1"})

		err := store.Update(id, ticket.Patch{Title: "t2", Description: "d2", Status: ticket.StatusDone})
		if err != nil {
			t.Fatalf("Failed to update ticket: %v", err)
		}

		got, err := store.Fetch(id)
		if err != nil {
			t.Fatalf("Failed to fetch ticket: %v", err)
		}

		want := ticket.Ticket{ID: 1, Title: "t2", Description: "d2", Status: ticket.StatusDone}
		if got != want {
			t.Errorf("Expected %+v, got %+v", want, got)
		}
	})

	t.Run("fetch unknown id on empty store", func(t *testing.T) {
		store := NewStore()

		_, err := store.Fetch(999)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update unknown id creates nothing", func(t *testing.T) {
		store := NewStore()
		store.Create(ticket.Draft{Title: "a"})

		err := store.Update(42, ticket.Patch{Title: "x", Status: ticket.StatusDone})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if mustLen(t, store) != 1 {
			t.Errorf("Expected store size 1 after failed update, got %d", mustLen(t, store))
		}
		if _, err := store.Fetch(42); !errors.Is(err, ErrNotFound) {
			t.Errorf("Failed update must not create ticket 42, got %v", err)
		}
	})

	t.Run("ids are sequential and never reused", func(t *testing.T) {
		store := NewStore()

		var prev ticket.ID
		for i := 0; i < 100; i++ {
			id, err := store.Add(ticket.Draft{Title: fmt.Sprintf("t%d", i)})
			if err != nil {
				t.Fatalf("Add failed: %v", err)
			}
			if id <= prev {
				t.Fatalf("id %d not greater than previous %d", id, prev)
			}
			prev = id
		}

		ids, err := store.IDs()
		if err != nil {
			t.Fatalf("IDs failed: %v", err)
		}
		if len(ids) != 100 {
			t.Fatalf("Expected 100 ids, got %d", len(ids))
		}
		for i, id := range ids {
			if id != ticket.ID(i+1) {
				t.Errorf("ids[%d] = %d, want %d", i, id, i+1)
			}
		}
	})

	t.Run("empty fields are stored as given", func(t *testing.T) {
		store := NewStore()

		id, _ := store.Add(ticket.Draft{})
		got, err := store.Fetch(id)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if got.Title != "" || got.Description != "" || got.Status != ticket.StatusToDo {
			t.Errorf("Unexpected ticket %+v", got)
		}
	})
}

func TestHandle(t *testing.T) {
	t.Run("handle outlives the lookup", func(t *testing.T) {
		store := NewStore()
		id, _ := store.Add(ticket.Draft{Title: "t1"})

		h, err := store.Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, h.ID())

		// Writing through a retained handle is visible through the store.
		require.NoError(t, h.Write(ticket.Patch{Title: "t9", Status: ticket.StatusInProgress}))

		got, err := store.Fetch(id)
		require.NoError(t, err)
		assert.Equal(t, "t9", got.Title)
		assert.Equal(t, ticket.StatusInProgress, got.Status)
	})

	t.Run("read returns an independent copy", func(t *testing.T) {
		store := NewStore()
		id, _ := store.Add(ticket.Draft{Title: "t1"})
		h, _ := store.Get(id)

		view, err := h.Read()
		require.NoError(t, err)

		require.NoError(t, h.Write(ticket.Patch{Title: "t2", Status: ticket.StatusDone}))
		assert.Equal(t, "t1", view.Title, "earlier view must not change")
	})

	t.Run("modify commits and keeps id", func(t *testing.T) {
		store := NewStore()
		id, _ := store.Add(ticket.Draft{Title: "t1"})
		h, _ := store.Get(id)

		err := h.Modify(func(tk *ticket.Ticket) {
			tk.ID = 999
			tk.Status = ticket.StatusDone
		})
		require.NoError(t, err)

		got, err := h.Read()
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, ticket.StatusDone, got.Status)
		assert.Equal(t, "t1", got.Title)
	})
}

func TestPoisoning(t *testing.T) {
	t.Run("panicking modify poisons only that record", func(t *testing.T) {
		store := NewStore()
		bad, _ := store.Add(ticket.Draft{Title: "bad"})
		good, _ := store.Add(ticket.Draft{Title: "good"})

		h, err := store.Get(bad)
		require.NoError(t, err)

		err = h.Modify(func(tk *ticket.Ticket) {
			tk.Title = "half-written"
			panic("boom")
		})
		require.ErrorIs(t, err, ErrPoisoned)
		assert.Contains(t, err.Error(), "boom")
		assert.True(t, h.Poisoned())

		_, err = store.Fetch(bad)
		assert.ErrorIs(t, err, ErrPoisoned)
		assert.NotErrorIs(t, err, ErrNotFound)

		err = store.Update(bad, ticket.Patch{Title: "again", Status: ticket.StatusDone})
		assert.ErrorIs(t, err, ErrPoisoned)

		// Unrelated tickets and the index are unaffected.
		got, err := store.Fetch(good)
		require.NoError(t, err)
		assert.Equal(t, "good", got.Title)

		_, err = store.Add(ticket.Draft{Title: "new"})
		require.NoError(t, err)
		assert.Equal(t, 3, mustLen(t, store))
	})

	t.Run("poisoned record is skipped by stats but fails list", func(t *testing.T) {
		store := NewStore()
		id, _ := store.Add(ticket.Draft{Title: "bad"})
		store.Add(ticket.Draft{Title: "ok"})
		h, _ := store.Get(id)
		_ = h.Modify(func(*ticket.Ticket) { panic("boom") })

		stats, err := store.Stats()
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Tickets)
		assert.Equal(t, 1, stats.ByStatus[ticket.StatusToDo])

		_, err = store.List()
		assert.ErrorIs(t, err, ErrPoisoned)
	})

	t.Run("poisoned index fails lookups and inserts", func(t *testing.T) {
		store := NewStore()
		id, _ := store.Add(ticket.Draft{Title: "t1"})

		err := store.index.write(func() { panic("index corrupted") })
		require.ErrorIs(t, err, ErrPoisoned)

		_, err = store.Get(id)
		assert.ErrorIs(t, err, ErrPoisoned)

		_, err = store.Add(ticket.Draft{Title: "t2"})
		assert.ErrorIs(t, err, ErrPoisoned)

		_, err = store.IDs()
		assert.ErrorIs(t, err, ErrPoisoned)

		_, err = store.Len()
		assert.ErrorIs(t, err, ErrPoisoned)
	})

	t.Run("lock is released after a panic", func(t *testing.T) {
		var l rwLock
		_ = l.write(func() { panic("boom") })

		// If the mutex were still held this would block forever.
		done := make(chan struct{})
		go func() {
			l.mu.Lock()
			l.mu.Unlock()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("mutex still held after panic")
		}
	})
}

func TestListAndStats(t *testing.T) {
	store := NewStore()

	for i := 0; i < 5; i++ {
		store.Add(ticket.Draft{Title: fmt.Sprintf("t%d", i)})
	}
	require.NoError(t, store.Update(2, ticket.Patch{Title: "t1", Status: ticket.StatusInProgress}))
	require.NoError(t, store.Update(4, ticket.Patch{Title: "t3", Status: ticket.StatusDone}))
	require.NoError(t, store.Update(5, ticket.Patch{Title: "t4", Status: ticket.StatusDone}))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, tk := range list {
		assert.Equal(t, ticket.ID(i+1), tk.ID)
	}

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Tickets)
	assert.Equal(t, map[ticket.Status]int{
		ticket.StatusToDo:       2,
		ticket.StatusInProgress: 1,
		ticket.StatusDone:       2,
	}, stats.ByStatus)
}

// TestStoreConcurrency tests thread-safe concurrent access
func TestStoreConcurrency(t *testing.T) {
	t.Run("concurrent creates", func(t *testing.T) {
		store := NewStore()

		numGoroutines := 100
		numOps := 100

		ids := make(chan ticket.ID, numGoroutines*numOps)
		var wg sync.WaitGroup
		wg.Add(numGoroutines)

		for i := 0; i < numGoroutines; i++ {
			go func(g int) {
				defer wg.Done()
				for j := 0; j < numOps; j++ {
					id, err := store.Create(ticket.Draft{
						Title:       fmt.Sprintf("g%d-%d", g, j),
						Description: fmt.Sprintf("desc-%d-%d", g, j),
					})
					if err != nil {
						t.Errorf("Failed to create: %v", err)
						return
					}
					ids <- id
				}
			}(i)
		}

		wg.Wait()
		close(ids)

		seen := make(map[ticket.ID]bool)
		for id := range ids {
			if seen[id] {
				t.Fatalf("id %d issued twice", id)
			}
			seen[id] = true
		}

		expected := numGoroutines * numOps
		if mustLen(t, store) != expected {
			t.Errorf("Expected %d tickets, got %d", expected, mustLen(t, store))
		}
	})

	t.Run("two concurrent creates keep their drafts", func(t *testing.T) {
		store := NewStore()
		drafts := []ticket.Draft{
			{Title: "first", Description: "one"},
			{Title: "second", Description: "two"},
		}

		ids := make([]ticket.ID, len(drafts))
		var wg sync.WaitGroup
		for i := range drafts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := store.Create(drafts[i])
				if err != nil {
					t.Errorf("create failed: %v", err)
				}
				ids[i] = id
			}(i)
		}
		wg.Wait()

		require.NotEqual(t, ids[0], ids[1])
		for i, id := range ids {
			got, err := store.Fetch(id)
			require.NoError(t, err)
			assert.Equal(t, drafts[i].Title, got.Title)
			assert.Equal(t, drafts[i].Description, got.Description)
			assert.Equal(t, ticket.StatusToDo, got.Status)
		}
	})

	t.Run("concurrent writes never tear", func(t *testing.T) {
		store := NewStore()
		id, _ := store.Create(ticket.Draft{Title: "w0", Description: "w0"})

		statuses := ticket.Statuses
		numWriters := 50
		numWrites := 200

		patch := func(w, j int) ticket.Patch {
			tag := fmt.Sprintf("w%d-%d", w, j)
			return ticket.Patch{Title: tag, Description: tag, Status: statuses[(w+j)%len(statuses)]}
		}

		var wg sync.WaitGroup
		wg.Add(numWriters)
		for w := 0; w < numWriters; w++ {
			go func(w int) {
				defer wg.Done()
				for j := 0; j < numWrites; j++ {
					if err := store.Update(id, patch(w, j)); err != nil {
						t.Errorf("update failed: %v", err)
						return
					}
				}
			}(w)
		}

		// Readers check the invariant while writes are in flight.
		stop := make(chan struct{})
		var readers sync.WaitGroup
		for r := 0; r < 10; r++ {
			readers.Add(1)
			go func() {
				defer readers.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					got, err := store.Fetch(id)
					if err != nil {
						t.Errorf("fetch failed: %v", err)
						return
					}
					if got.Title != got.Description {
						t.Errorf("torn read: %+v", got)
						return
					}
				}
			}()
		}

		wg.Wait()
		close(stop)
		readers.Wait()

		got, err := store.Fetch(id)
		require.NoError(t, err)
		assert.Equal(t, got.Title, got.Description)

		var w, j int
		_, err = fmt.Sscanf(got.Title, "w%d-%d", &w, &j)
		require.NoError(t, err)
		assert.Equal(t, patch(w, j), ticket.Patch{Title: got.Title, Description: got.Description, Status: got.Status},
			"final state must match exactly one submitted patch")
	})

	t.Run("slow write on one ticket does not block another", func(t *testing.T) {
		store := NewStore()
		slowID, _ := store.Create(ticket.Draft{Title: "slow"})
		fastID, _ := store.Create(ticket.Draft{Title: "fast"})

		slow, err := store.Get(slowID)
		require.NoError(t, err)

		entered := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- slow.Modify(func(tk *ticket.Ticket) {
				close(entered)
				<-release
				tk.Status = ticket.StatusDone
			})
		}()
		<-entered

		finished := make(chan error, 1)
		go func() {
			if _, err := store.Fetch(fastID); err != nil {
				finished <- err
				return
			}
			if err := store.Update(fastID, ticket.Patch{Title: "fast2", Status: ticket.StatusInProgress}); err != nil {
				finished <- err
				return
			}
			// The index stays usable too.
			_, err := store.Add(ticket.Draft{Title: "third"})
			finished <- err
		}()

		select {
		case err := <-finished:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("operations on another ticket blocked behind a slow writer")
		}

		close(release)
		require.NoError(t, <-done)

		got, err := store.Fetch(slowID)
		require.NoError(t, err)
		assert.Equal(t, ticket.StatusDone, got.Status)
	})

	t.Run("concurrent mixed operations", func(t *testing.T) {
		store := NewStore()
		for i := 0; i < 10; i++ {
			store.Create(ticket.Draft{Title: fmt.Sprintf("seed-%d", i)})
		}

		var wg sync.WaitGroup
		numGoroutines := 20
		wg.Add(numGoroutines * 4)

		for i := 0; i < numGoroutines; i++ {
			go func(g int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					store.Create(ticket.Draft{Title: fmt.Sprintf("c%d-%d", g, j)})
				}
			}(i)
			go func(g int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					id := ticket.ID(j%10 + 1)
					store.Update(id, ticket.Patch{Title: fmt.Sprintf("u%d", g), Status: ticket.StatusInProgress})
				}
			}(i)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					store.Fetch(ticket.ID(j%10 + 1))
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 5; j++ {
					store.List()
					store.Stats()
				}
			}()
		}

		wg.Wait()

		if mustLen(t, store) != 10+numGoroutines*50 {
			t.Errorf("Expected %d tickets, got %d", 10+numGoroutines*50, mustLen(t, store))
		}
	})
}

func mustLen(t *testing.T, store *Store) int {
	t.Helper()
	n, err := store.Len()
	require.NoError(t, err)
	return n
}
