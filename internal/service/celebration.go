package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stickerboard/internal/models"
)

// Celebration is the visual feedback owed for an observed board state.
type Celebration int

const (
	CelebrationNone Celebration = iota
	CelebrationIncremental
	CelebrationCompleted
)

func (c Celebration) String() string {
	switch c {
	case CelebrationIncremental:
		return "incremental"
	case CelebrationCompleted:
		return "completed"
	default:
		return "none"
	}
}

// DetectCelebration compares the observed count with the count this device
// last saw. Only growth celebrates; a decrement or an unchanged count does not.
func DetectCelebration(board *models.Board, lastSeen int) Celebration {
	switch {
	case board.CurrentCount > lastSeen && board.CurrentCount == board.TotalSlots:
		return CelebrationCompleted
	case board.CurrentCount > lastSeen:
		return CelebrationIncremental
	default:
		return CelebrationNone
	}
}

// CelebrationMemory stores the last count each board was seen at on this device.
type CelebrationMemory interface {
	LastSeen(boardID string) (count int, ok bool, err error)
	SetLastSeen(boardID string, count int) error
}

// CelebrationEvent is emitted for a board whose count grew since it was last seen.
type CelebrationEvent struct {
	Board *models.Board
	Kind  Celebration
}

// CelebrationWatcher turns board snapshots into celebration events.
type CelebrationWatcher struct {
	memory CelebrationMemory
	log    *zap.Logger
}

// NewCelebrationWatcher creates a new celebration watcher
func NewCelebrationWatcher(memory CelebrationMemory, log *zap.Logger) *CelebrationWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &CelebrationWatcher{memory: memory, log: log}
}

// Observe evaluates one snapshot and records every board's count. A board
// with no memory is seeded silently.
func (w *CelebrationWatcher) Observe(boards []*models.Board) ([]CelebrationEvent, error) {
	var events []CelebrationEvent
	for _, b := range boards {
		last, ok, err := w.memory.LastSeen(b.ID)
		if err != nil {
			return events, fmt.Errorf("failed to read celebration memory for %s: %w", b.ID, err)
		}

		if ok {
			if kind := DetectCelebration(b, last); kind != CelebrationNone {
				events = append(events, CelebrationEvent{Board: b, Kind: kind})
			}
			if last == b.CurrentCount {
				continue
			}
		}

		if err := w.memory.SetLastSeen(b.ID, b.CurrentCount); err != nil {
			return events, fmt.Errorf("failed to update celebration memory for %s: %w", b.ID, err)
		}
	}
	return events, nil
}

// Run consumes stream until it ends or ctx is done, passing each event to
// emit. Sets that carry errors still celebrate the boards that decoded.
func (w *CelebrationWatcher) Run(ctx context.Context, stream *BoardStream, emit func(CelebrationEvent)) error {
	defer stream.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case set, ok := <-stream.Updates():
			if !ok {
				return ctx.Err()
			}
			if set.Err != nil {
				w.log.Warn("board set delivered with errors", zap.Error(set.Err))
			}
			events, err := w.Observe(set.Boards)
			for _, ev := range events {
				emit(ev)
			}
			if err != nil {
				return err
			}
		}
	}
}
