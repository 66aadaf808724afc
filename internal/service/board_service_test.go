package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"stickerboard/internal/models"
	"stickerboard/internal/security"
	"stickerboard/internal/store"
)

var testHasher = security.BcryptHasher{Cost: bcrypt.MinCost}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// Now advances one second per call so every timestamp is distinct.
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore() *store.Memory {
	return store.NewMemory(store.UniqueField(models.CollectionCredentials, models.FieldEmail))
}

type recordingNotifier struct {
	mu     sync.Mutex
	boards []string
}

func (n *recordingNotifier) NotifyBoardCompleted(_ context.Context, b *models.Board) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.boards = append(n.boards, b.ID)
	return nil
}

func newBoard(t *testing.T, svc *BoardService, owner string, total int) *models.Board {
	t.Helper()
	b, err := svc.CreateBoard(context.Background(), owner, "Trip to the zoo", total, "")
	require.NoError(t, err)
	return b
}

func fill(t *testing.T, svc *BoardService, owner string, b *models.Board) *models.Board {
	t.Helper()
	for !b.IsComplete() {
		var err error
		b, err = svc.AdjustCount(context.Background(), owner, b, 1)
		require.NoError(t, err)
	}
	return b
}

func TestCreateBoard(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()

	b, err := svc.CreateBoard(ctx, "owner-1", "  Ice cream  ", 5, "")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "Ice cream", b.Title)
	assert.Equal(t, 0, b.CurrentCount)
	assert.Equal(t, models.StateActive, b.LifecycleState)
	assert.Equal(t, models.DefaultRewardImage, b.RewardImageRef)
	assert.Nil(t, b.CompletedAt)

	got, err := svc.GetBoard(ctx, "owner-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, 5, got.TotalSlots)
}

func TestCreateBoardValidation(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)

	tests := []struct {
		name  string
		title string
		total int
	}{
		{"empty title", "", 5},
		{"blank title", "   ", 5},
		{"zero slots", "Bike", 0},
		{"negative slots", "Bike", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBoard(context.Background(), "owner-1", tt.title, tt.total, "")
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateBoardCustomImage(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil, WithDefaultImage("/star.png"))

	b, err := svc.CreateBoard(context.Background(), "owner-1", "Bike", 3, "")
	require.NoError(t, err)
	assert.Equal(t, "/star.png", b.RewardImageRef)

	b, err = svc.CreateBoard(context.Background(), "owner-1", "Bike", 3, "/bike.png")
	require.NoError(t, err)
	assert.Equal(t, "/bike.png", b.RewardImageRef)
}

func TestAdjustCountStaysInRange(t *testing.T) {
	st := newTestStore()
	svc := NewBoardService(st, nil)
	ctx := context.Background()

	b := newBoard(t, svc, "owner-1", 2)

	_, err := svc.AdjustCount(ctx, "owner-1", b, -1)
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.ErrorIs(t, err, ErrRange)
	assert.Equal(t, 0, rangeErr.Count)

	b, err = svc.AdjustCount(ctx, "owner-1", b, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, b.CurrentCount)
	assert.Nil(t, b.CompletedAt)

	b, err = svc.AdjustCount(ctx, "owner-1", b, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, b.CurrentCount)
	assert.True(t, b.IsComplete())
	require.NotNil(t, b.CompletedAt)

	_, err = svc.AdjustCount(ctx, "owner-1", b, 1)
	assert.ErrorIs(t, err, ErrRange)

	doc, err := st.Get(ctx, models.CollectionBoards, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc[models.FieldCurrentCount], "rejected adjustment must not write")

	_, err = svc.AdjustCount(ctx, "owner-1", b, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompletedAtIsSetOnce(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil, WithClock(newStepClock().Now))
	ctx := context.Background()

	b := fill(t, svc, "owner-1", newBoard(t, svc, "owner-1", 2))
	first := *b.CompletedAt

	b, err := svc.AdjustCount(ctx, "owner-1", b, -1)
	require.NoError(t, err)
	require.NotNil(t, b.CompletedAt)
	assert.Equal(t, first, *b.CompletedAt)

	b, err = svc.AdjustCount(ctx, "owner-1", b, 1)
	require.NoError(t, err)
	assert.Equal(t, first, *b.CompletedAt)
}

func TestConcurrentAdjustmentsNeverExceedTotal(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()

	stale := newBoard(t, svc, "owner-1", 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		ranged    int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AdjustCount(ctx, "owner-1", stale, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrRange):
				ranged++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 15, ranged)

	b, err := svc.GetBoard(ctx, "owner-1", stale.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, b.CurrentCount)
}

func TestAdjustCountNotifiesOnCompletion(t *testing.T) {
	n := &recordingNotifier{}
	svc := NewBoardService(newTestStore(), nil, WithCompletionNotifier(n))
	ctx := context.Background()

	b := fill(t, svc, "owner-1", newBoard(t, svc, "owner-1", 3))
	b, err := svc.AdjustCount(ctx, "owner-1", b, -1)
	require.NoError(t, err)
	_, err = svc.AdjustCount(ctx, "owner-1", b, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{b.ID, b.ID}, n.boards)
}

func TestArchiveBoard(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()

	b := newBoard(t, svc, "owner-1", 2)
	_, err := svc.ArchiveBoard(ctx, "owner-1", b)
	assert.ErrorIs(t, err, ErrPrecondition, "incomplete board must not archive")

	b = fill(t, svc, "owner-1", b)
	completed := *b.CompletedAt

	archived, err := svc.ArchiveBoard(ctx, "owner-1", b)
	require.NoError(t, err)
	assert.Equal(t, models.StateArchived, archived.LifecycleState)
	require.NotNil(t, archived.CompletedAt)
	assert.Equal(t, completed, *archived.CompletedAt)

	_, err = svc.ArchiveBoard(ctx, "owner-1", archived)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = svc.AdjustCount(ctx, "owner-1", archived, -1)
	assert.ErrorIs(t, err, ErrPrecondition)

	// A stale active snapshot is still refused by the store guard.
	_, err = svc.AdjustCount(ctx, "owner-1", b, -1)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestArchiveBoardRechecksCompletion(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()

	b := fill(t, svc, "owner-1", newBoard(t, svc, "owner-1", 2))
	_, err := svc.AdjustCount(ctx, "owner-1", b, -1)
	require.NoError(t, err)

	_, err = svc.ArchiveBoard(ctx, "owner-1", b)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestBoardOwnership(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()
	b := newBoard(t, svc, "owner-1", 3)

	_, err := svc.GetBoard(ctx, "intruder", b.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.AdjustCount(ctx, "intruder", b, 1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ArchiveBoard(ctx, "intruder", b)
	assert.ErrorIs(t, err, ErrForbidden)

	title := "Mine now"
	_, err = svc.UpdateBoardSettings(ctx, "intruder", b, BoardSettings{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, svc.DeleteBoard(ctx, "intruder", b.ID), ErrForbidden)

	// A forged snapshot claiming ownership is stopped by the store guard.
	forged := *b
	forged.OwnerID = "intruder"
	_, err = svc.AdjustCount(ctx, "intruder", &forged, 1)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.GetBoard(ctx, "owner-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentCount)
}

func TestUpdateBoardSettings(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()

	b := newBoard(t, svc, "owner-1", 5)
	b, err := svc.AdjustCount(ctx, "owner-1", b, 3)
	require.NoError(t, err)

	title := "Cinema night"
	total := 8
	image := "/cinema.png"
	updated, err := svc.UpdateBoardSettings(ctx, "owner-1", b, BoardSettings{
		Title:          &title,
		TotalSlots:     &total,
		RewardImageRef: &image,
	})
	require.NoError(t, err)
	assert.Equal(t, "Cinema night", updated.Title)
	assert.Equal(t, 8, updated.TotalSlots)
	assert.Equal(t, "/cinema.png", updated.RewardImageRef)
	assert.Equal(t, 3, updated.CurrentCount)

	tooSmall := 2
	_, err = svc.UpdateBoardSettings(ctx, "owner-1", updated, BoardSettings{TotalSlots: &tooSmall})
	assert.ErrorIs(t, err, ErrValidation)

	empty := ""
	_, err = svc.UpdateBoardSettings(ctx, "owner-1", updated, BoardSettings{Title: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	zero := 0
	_, err = svc.UpdateBoardSettings(ctx, "owner-1", updated, BoardSettings{TotalSlots: &zero})
	assert.ErrorIs(t, err, ErrValidation)

	same, err := svc.UpdateBoardSettings(ctx, "owner-1", updated, BoardSettings{})
	require.NoError(t, err)
	assert.Equal(t, updated.Title, same.Title)
}

func TestUpdateBoardSettingsRechecksCount(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()

	stale := newBoard(t, svc, "owner-1", 6)
	fresh, err := svc.AdjustCount(ctx, "owner-1", stale, 5)
	require.NoError(t, err)
	require.Equal(t, 5, fresh.CurrentCount)

	total := 4
	_, err = svc.UpdateBoardSettings(ctx, "owner-1", stale, BoardSettings{TotalSlots: &total})
	assert.ErrorIs(t, err, ErrValidation)

	got, err := svc.GetBoard(ctx, "owner-1", stale.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.TotalSlots)
}

func TestUpdateBoardSettingsArchivedIsReadOnly(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx := context.Background()

	b := fill(t, svc, "owner-1", newBoard(t, svc, "owner-1", 1))
	archived, err := svc.ArchiveBoard(ctx, "owner-1", b)
	require.NoError(t, err)

	title := "Renamed"
	_, err = svc.UpdateBoardSettings(ctx, "owner-1", archived, BoardSettings{Title: &title})
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = svc.UpdateBoardSettings(ctx, "owner-1", b, BoardSettings{Title: &title})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestDeleteBoard(t *testing.T) {
	st := newTestStore()
	svc := NewBoardService(st, nil)
	ctx := context.Background()

	b := newBoard(t, svc, "owner-1", 3)
	require.NoError(t, svc.DeleteBoard(ctx, "owner-1", b.ID))

	_, err := svc.GetBoard(ctx, "owner-1", b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteBoard(ctx, "owner-1", b.ID), ErrNotFound)

	// Corrupt boards can still be removed by their owner.
	require.NoError(t, st.CreateWithID(ctx, models.CollectionBoards, "corrupt", store.Document{
		models.FieldOwnerID:      "owner-1",
		models.FieldCurrentCount: 9,
	}))
	assert.NoError(t, svc.DeleteBoard(ctx, "owner-1", "corrupt"))
}

func TestListBoardsOrdering(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil, WithClock(newStepClock().Now))
	ctx := context.Background()

	first := newBoard(t, svc, "owner-1", 1)
	second := newBoard(t, svc, "owner-1", 1)
	third := newBoard(t, svc, "owner-1", 1)
	newBoard(t, svc, "owner-2", 1)

	active, err := svc.ListBoards(ctx, "owner-1", models.StateActive)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{active[0].ID, active[1].ID, active[2].ID})

	for _, b := range []*models.Board{second, first} {
		b = fill(t, svc, "owner-1", b)
		_, err := svc.ArchiveBoard(ctx, "owner-1", b)
		require.NoError(t, err)
	}

	archived, err := svc.ListBoards(ctx, "owner-1", models.StateArchived)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, first.ID, archived[0].ID, "most recently completed first")
	assert.Equal(t, second.ID, archived[1].ID)

	active, err = svc.ListBoards(ctx, "owner-1", models.StateActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, third.ID, active[0].ID)

	_, err = svc.ListBoards(ctx, "owner-1", "deleted")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListBoardsFailsClosed(t *testing.T) {
	st := newTestStore()
	svc := NewBoardService(st, nil)
	ctx := context.Background()

	newBoard(t, svc, "owner-1", 3)
	require.NoError(t, st.CreateWithID(ctx, models.CollectionBoards, "broken", store.Document{
		models.FieldOwnerID:        "owner-1",
		models.FieldTitle:          "Broken",
		models.FieldTotalSlots:     3,
		models.FieldCurrentCount:   7,
		models.FieldLifecycleState: "active",
	}))

	_, err := svc.ListBoards(ctx, "owner-1", models.StateActive)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.GetBoard(ctx, "owner-1", "broken")
	assert.ErrorIs(t, err, ErrValidation)
}

func nextSet(t *testing.T, bs *BoardStream) BoardSet {
	t.Helper()
	select {
	case set, ok := <-bs.Updates():
		require.True(t, ok, "stream closed")
		return set
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for board set")
		return BoardSet{}
	}
}

func TestObserveBoards(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil, WithClock(newStepClock().Now))
	ctx := context.Background()

	b := newBoard(t, svc, "owner-1", 3)

	stream, err := svc.ObserveBoards(ctx, "owner-1", models.StateActive)
	require.NoError(t, err)
	defer stream.Cancel()

	set := nextSet(t, stream)
	require.NoError(t, set.Err)
	require.Len(t, set.Boards, 1)
	assert.Equal(t, 0, set.Boards[0].CurrentCount)

	_, err = svc.AdjustCount(ctx, "owner-1", b, 2)
	require.NoError(t, err)

	set = nextSet(t, stream)
	require.Len(t, set.Boards, 1)
	assert.Equal(t, 2, set.Boards[0].CurrentCount)

	second := newBoard(t, svc, "owner-1", 4)
	set = nextSet(t, stream)
	require.Len(t, set.Boards, 2)
	assert.Equal(t, second.ID, set.Boards[1].ID)
}

func TestObserveBoardsReportsCorruptDocuments(t *testing.T) {
	st := newTestStore()
	svc := NewBoardService(st, nil)
	ctx := context.Background()

	good := newBoard(t, svc, "owner-1", 3)
	require.NoError(t, st.CreateWithID(ctx, models.CollectionBoards, "broken", store.Document{
		models.FieldOwnerID:        "owner-1",
		models.FieldLifecycleState: "active",
		models.FieldTotalSlots:     0,
	}))

	stream, err := svc.ObserveBoards(ctx, "owner-1", models.StateActive)
	require.NoError(t, err)
	defer stream.Cancel()

	set := nextSet(t, stream)
	assert.ErrorIs(t, set.Err, ErrValidation)
	require.Len(t, set.Boards, 1)
	assert.Equal(t, good.ID, set.Boards[0].ID)
}

func TestBoardStreamCancel(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)

	stream, err := svc.ObserveBoards(context.Background(), "owner-1", models.StateActive)
	require.NoError(t, err)

	stream.Cancel()
	stream.Cancel()

	select {
	case _, ok := <-stream.Updates():
		assert.False(t, ok, "no delivery after cancel")
	case <-time.After(time.Second):
		t.Fatal("updates channel not closed after cancel")
	}
}

func TestBoardStreamEndsWithContext(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := svc.ObserveBoards(ctx, "owner-1", models.StateActive)
	require.NoError(t, err)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-stream.Updates():
			if !ok {
				stream.Cancel()
				return
			}
		case <-deadline:
			t.Fatal("stream did not end with its context")
		}
	}
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	svc := NewBoardService(newTestStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateBoard(ctx, "owner-1", "Bike", 3, "")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
