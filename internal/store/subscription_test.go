package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		require.True(t, ok, "updates channel closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestSubscribeDeliversInitialAndChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateWithID(ctx, "boards", "b1", Document{"ownerId": "o", "n": 1}))

	sub, err := m.Subscribe(ctx, "boards", Query{Where: []Condition{Eq("ownerId", "o")}})
	require.NoError(t, err)
	defer sub.Cancel()

	snap := nextSnapshot(t, sub)
	require.NoError(t, snap.Err)
	require.Len(t, snap.Documents, 1)

	require.NoError(t, m.CreateWithID(ctx, "boards", "b2", Document{"ownerId": "o", "n": 2}))
	snap = nextSnapshot(t, sub)
	require.NoError(t, snap.Err)
	assert.Len(t, snap.Documents, 2)

	require.NoError(t, m.Update(ctx, "boards", "b1", Document{"n": 5}))
	snap = nextSnapshot(t, sub)
	require.Len(t, snap.Documents, 2)
	assert.Equal(t, int64(5), snap.Documents[0]["n"])
}

func TestSubscribeSkipsUnrelatedWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateWithID(ctx, "boards", "b1", Document{"ownerId": "o"}))

	sub, err := m.Subscribe(ctx, "boards", Query{Where: []Condition{Eq("ownerId", "o")}})
	require.NoError(t, err)
	defer sub.Cancel()
	nextSnapshot(t, sub)

	// Not in the query: the matching set does not change.
	require.NoError(t, m.CreateWithID(ctx, "boards", "b2", Document{"ownerId": "other"}))

	select {
	case snap := <-sub.Updates():
		t.Fatalf("unexpected snapshot: %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeCoalescesToNewest(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateWithID(ctx, "boards", "b1", Document{"n": 0}))

	sub, err := m.Subscribe(ctx, "boards", Query{})
	require.NoError(t, err)
	defer sub.Cancel()
	nextSnapshot(t, sub)

	for i := 1; i <= 20; i++ {
		require.NoError(t, m.Update(ctx, "boards", "b1", Document{"n": i}))
	}

	var last int64 = -1
	deadline := time.After(2 * time.Second)
	for last != 20 {
		select {
		case snap := <-sub.Updates():
			n := snap.Documents[0]["n"].(int64)
			assert.Greater(t, n, last, "snapshots must never go backwards")
			last = n
		case <-deadline:
			t.Fatalf("newest value never delivered, last=%d", last)
		}
	}
}

func TestCancelClosesUpdatesAndIsIdempotent(t *testing.T) {
	m := NewMemory()
	sub, err := m.Subscribe(context.Background(), "boards", Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.hub.Count("boards"))

	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.Updates()
	assert.False(t, ok)
	assert.Equal(t, 0, m.hub.Count("boards"))

	// Writes after cancel must not block or panic.
	require.NoError(t, m.CreateWithID(context.Background(), "boards", "x", Document{}))
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := m.Subscribe(ctx, "boards", Query{})
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
	sub.Cancel()
}

func TestHubDeliversFetchErrors(t *testing.T) {
	h := NewHub(0)
	boom := errors.New("boom")
	sub := h.Subscribe(context.Background(), "boards", func(context.Context) ([]Document, error) {
		return nil, boom
	})
	defer sub.Cancel()

	snap := nextSnapshot(t, sub)
	assert.ErrorIs(t, snap.Err, boom)
}

func TestHubPollRefetches(t *testing.T) {
	h := NewHub(10 * time.Millisecond)
	n := int64(0)
	sub := h.Subscribe(context.Background(), "boards", func(context.Context) ([]Document, error) {
		n++
		return []Document{{"id": "a", "n": n}}, nil
	})
	defer sub.Cancel()

	first := nextSnapshot(t, sub)
	second := nextSnapshot(t, sub)
	assert.Less(t, first.Documents[0]["n"].(int64), second.Documents[0]["n"].(int64))
}

func TestHubClose(t *testing.T) {
	h := NewHub(0)
	a := h.Subscribe(context.Background(), "boards", func(context.Context) ([]Document, error) { return nil, nil })
	b := h.Subscribe(context.Background(), "accounts", func(context.Context) ([]Document, error) { return nil, nil })

	h.Close()

	_, okA := <-a.Updates()
	_, okB := <-b.Updates()
	assert.False(t, okA)
	assert.False(t, okB)
}
