package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/store"
	"stickerboard/internal/validation"
)

// DefaultStoreTimeout bounds every store call made by the services.
const DefaultStoreTimeout = 10 * time.Second

// CompletionNotifier is told when an adjustment fills the last slot of a board.
type CompletionNotifier interface {
	NotifyBoardCompleted(ctx context.Context, board *models.Board) error
}

// BoardSettings holds the editable presentation fields of a board. Nil
// fields are left unchanged.
type BoardSettings struct {
	Title          *string `json:"title,omitempty"`
	TotalSlots     *int    `json:"totalSlots,omitempty"`
	RewardImageRef *string `json:"rewardImageRef,omitempty"`
}

// BoardService handles board business logic
type BoardService struct {
	store        store.Store
	log          *zap.Logger
	timeout      time.Duration
	defaultImage string
	notifier     CompletionNotifier
	now          func() time.Time
}

// BoardOption configures a BoardService.
type BoardOption func(*BoardService)

func WithStoreTimeout(d time.Duration) BoardOption {
	return func(s *BoardService) { s.timeout = d }
}

func WithDefaultImage(ref string) BoardOption {
	return func(s *BoardService) {
		if ref != "" {
			s.defaultImage = ref
		}
	}
}

func WithCompletionNotifier(n CompletionNotifier) BoardOption {
	return func(s *BoardService) { s.notifier = n }
}

func WithClock(now func() time.Time) BoardOption {
	return func(s *BoardService) { s.now = now }
}

// NewBoardService creates a new board service
func NewBoardService(st store.Store, log *zap.Logger, opts ...BoardOption) *BoardService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &BoardService{
		store:        st,
		log:          log,
		timeout:      DefaultStoreTimeout,
		defaultImage: models.DefaultRewardImage,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBoard creates a new active board with an empty counter
func (s *BoardService) CreateBoard(ctx context.Context, callerID, title string, totalSlots int, imageRef string) (*models.Board, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}

	title = validation.NormalizeTitle(title)
	if err := validation.ValidateTitle(title); err != nil {
		return nil, err
	}
	if err := validation.ValidateTotalSlots(totalSlots); err != nil {
		return nil, err
	}
	if imageRef == "" {
		imageRef = s.defaultImage
	}

	board := &models.Board{
		OwnerID:        callerID,
		Title:          title,
		TotalSlots:     totalSlots,
		CurrentCount:   0,
		RewardImageRef: imageRef,
		LifecycleState: models.StateActive,
		CreatedAt:      s.now().UTC(),
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.store.Create(ctx, models.CollectionBoards, board.Fields())
	if err != nil {
		return nil, storeError("failed to create board", err)
	}
	board.ID = id

	s.log.Info("board created",
		zap.String("board_id", id),
		zap.String("owner_id", callerID),
		zap.Int("total_slots", totalSlots))
	return board, nil
}

// GetBoard loads a board owned by callerID
func (s *BoardService) GetBoard(ctx context.Context, callerID, boardID string) (*models.Board, error) {
	board, err := s.load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board.OwnerID != callerID {
		return nil, fmt.Errorf("board %s: %w", boardID, ErrForbidden)
	}
	return board, nil
}

func (s *BoardService) load(ctx context.Context, boardID string) (*models.Board, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.store.Get(ctx, models.CollectionBoards, boardID)
	if err != nil {
		return nil, storeError("failed to get board", err)
	}
	board, err := models.DecodeBoard(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode board %s: %w", boardID, err)
	}
	return board, nil
}

func (s *BoardService) checkOwner(callerID string, board *models.Board) error {
	if board == nil {
		return validation.ValidationError{Field: "board", Message: "is required"}
	}
	if callerID == "" || board.OwnerID != callerID {
		return fmt.Errorf("board %s: %w", board.ID, ErrForbidden)
	}
	return nil
}

// AdjustCount adds delta to the board's counter. Out-of-range requests are
// rejected against the supplied board before any write. The store re-checks
// the bounds and the active state atomically with the increment. Once the
// increment is written AdjustCount never fails; if the board cannot be
// reloaded the result is derived from the supplied board.
func (s *BoardService) AdjustCount(ctx context.Context, callerID string, board *models.Board, delta int) (*models.Board, error) {
	if err := s.checkOwner(callerID, board); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, validation.ValidationError{Field: "delta", Message: "must not be zero"}
	}
	if board.IsArchived() {
		return nil, precondition("board %s is archived", board.ID)
	}
	next := board.CurrentCount + delta
	if next < 0 || next > board.TotalSlots {
		return nil, &RangeError{Count: board.CurrentCount, Delta: delta, TotalSlots: board.TotalSlots}
	}

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.Increment(sctx, models.CollectionBoards, board.ID, store.Increment{
		Field:    models.FieldCurrentCount,
		Delta:    int64(delta),
		Min:      0,
		MaxField: models.FieldTotalSlots,
		Where: []store.Condition{
			store.Eq(models.FieldOwnerID, callerID),
			store.Eq(models.FieldLifecycleState, string(models.StateActive)),
		},
		AtMax: store.Document{
			models.FieldCompletedAt: store.IfNull(s.now().UTC()),
		},
	})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, s.classifyAdjustFailure(ctx, board, delta)
	}
	if err != nil {
		return nil, storeError("failed to adjust count", err)
	}

	updated, err := s.load(ctx, board.ID)
	if err != nil {
		// The increment is committed; report it from the snapshot.
		s.log.Warn("reload after adjustment failed",
			zap.String("board_id", board.ID),
			zap.Int("delta", delta),
			zap.Error(err))
		updated = s.applied(board, delta)
	}

	s.log.Debug("board count adjusted",
		zap.String("board_id", board.ID),
		zap.Int("delta", delta),
		zap.Int("current_count", updated.CurrentCount))

	if delta > 0 && updated.IsComplete() && s.notifier != nil {
		if err := s.notifier.NotifyBoardCompleted(ctx, updated); err != nil {
			s.log.Warn("completion notification failed", zap.String("board_id", board.ID), zap.Error(err))
		}
	}
	return updated, nil
}

// applied returns the state an increment of delta leaves behind, as derived
// from the snapshot it was checked against.
func (s *BoardService) applied(board *models.Board, delta int) *models.Board {
	next := *board
	next.CurrentCount += delta
	if next.IsComplete() && next.CompletedAt == nil {
		at := s.now().UTC()
		next.CompletedAt = &at
	}
	return &next
}

// classifyAdjustFailure explains why the store rejected an increment that
// passed the local checks: the board was archived or changed concurrently.
func (s *BoardService) classifyAdjustFailure(ctx context.Context, stale *models.Board, delta int) error {
	fresh, err := s.load(ctx, stale.ID)
	if err != nil {
		return err
	}
	if fresh.OwnerID != stale.OwnerID {
		return fmt.Errorf("board %s: %w", stale.ID, ErrForbidden)
	}
	if fresh.IsArchived() {
		return precondition("board %s is archived", fresh.ID)
	}
	return &RangeError{Count: fresh.CurrentCount, Delta: delta, TotalSlots: fresh.TotalSlots}
}

// ArchiveBoard moves a completed board into history
func (s *BoardService) ArchiveBoard(ctx context.Context, callerID string, board *models.Board) (*models.Board, error) {
	if err := s.checkOwner(callerID, board); err != nil {
		return nil, err
	}
	if board.IsArchived() {
		return nil, precondition("board %s is already archived", board.ID)
	}
	if !board.IsComplete() {
		return nil, precondition("board %s has %d of %d stickers", board.ID, board.CurrentCount, board.TotalSlots)
	}

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.Update(sctx, models.CollectionBoards, board.ID,
		store.Document{
			models.FieldLifecycleState: string(models.StateArchived),
			models.FieldCompletedAt:    store.IfNull(s.now().UTC()),
		},
		store.Eq(models.FieldOwnerID, callerID),
		store.Eq(models.FieldLifecycleState, string(models.StateActive)),
		store.Eq(models.FieldCurrentCount, store.Field(models.FieldTotalSlots)),
	)
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, precondition("board %s is no longer complete and active", board.ID)
	}
	if err != nil {
		return nil, storeError("failed to archive board", err)
	}

	s.log.Info("board archived", zap.String("board_id", board.ID))
	return s.load(ctx, board.ID)
}

// UpdateBoardSettings edits the title, slot count or reward image. The
// counter and lifecycle fields are never written here.
func (s *BoardService) UpdateBoardSettings(ctx context.Context, callerID string, board *models.Board, settings BoardSettings) (*models.Board, error) {
	if err := s.checkOwner(callerID, board); err != nil {
		return nil, err
	}
	if board.IsArchived() {
		return nil, precondition("board %s is archived", board.ID)
	}

	fields := store.Document{}
	guards := []store.Condition{
		store.Eq(models.FieldOwnerID, callerID),
		store.Eq(models.FieldLifecycleState, string(models.StateActive)),
	}

	if settings.Title != nil {
		title := validation.NormalizeTitle(*settings.Title)
		if err := validation.ValidateTitle(title); err != nil {
			return nil, err
		}
		fields[models.FieldTitle] = title
	}
	if settings.TotalSlots != nil {
		total := *settings.TotalSlots
		if err := validation.ValidateTotalSlots(total); err != nil {
			return nil, err
		}
		if total < board.CurrentCount {
			return nil, validation.ValidationError{
				Field:   models.FieldTotalSlots,
				Message: fmt.Sprintf("cannot be below the current count %d", board.CurrentCount),
			}
		}
		fields[models.FieldTotalSlots] = int64(total)
		guards = append(guards, store.Lte(models.FieldCurrentCount, int64(total)))
	}
	if settings.RewardImageRef != nil {
		ref := *settings.RewardImageRef
		if ref == "" {
			ref = s.defaultImage
		}
		fields[models.FieldRewardImageRef] = ref
	}
	if len(fields) == 0 {
		return s.load(ctx, board.ID)
	}

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.Update(sctx, models.CollectionBoards, board.ID, fields, guards...)
	if errors.Is(err, store.ErrConditionFailed) {
		fresh, lerr := s.load(ctx, board.ID)
		if lerr != nil {
			return nil, lerr
		}
		if fresh.IsArchived() {
			return nil, precondition("board %s is archived", board.ID)
		}
		return nil, validation.ValidationError{
			Field:   models.FieldTotalSlots,
			Message: fmt.Sprintf("cannot be below the current count %d", fresh.CurrentCount),
		}
	}
	if err != nil {
		return nil, storeError("failed to update board", err)
	}

	return s.load(ctx, board.ID)
}

// DeleteBoard permanently removes a board
func (s *BoardService) DeleteBoard(ctx context.Context, callerID, boardID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.store.Get(ctx, models.CollectionBoards, boardID)
	if err != nil {
		return storeError("failed to get board", err)
	}
	// Ownership is checked on the raw document so a corrupt board can still be removed.
	if owner, _ := doc[models.FieldOwnerID].(string); callerID == "" || owner != callerID {
		return fmt.Errorf("board %s: %w", boardID, ErrForbidden)
	}

	if err := s.store.Delete(ctx, models.CollectionBoards, boardID); err != nil {
		return storeError("failed to delete board", err)
	}
	s.log.Info("board deleted", zap.String("board_id", boardID))
	return nil
}

// boardQuery selects one owner's boards in a lifecycle state, in display order.
func boardQuery(ownerID string, state models.LifecycleState) store.Query {
	q := store.Query{
		Where: []store.Condition{
			store.Eq(models.FieldOwnerID, ownerID),
			store.Eq(models.FieldLifecycleState, string(state)),
		},
	}
	if state == models.StateArchived {
		q.OrderBy = []store.Order{{Field: models.FieldCompletedAt, Desc: true}}
	} else {
		q.OrderBy = []store.Order{{Field: models.FieldCreatedAt}}
	}
	return q
}

// ListBoards returns the owner's boards in one state. A board that fails to
// decode fails the whole listing.
func (s *BoardService) ListBoards(ctx context.Context, ownerID string, state models.LifecycleState) ([]*models.Board, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := models.ParseLifecycleState(string(state)); err != nil {
		return nil, validation.ValidationError{Field: "state", Message: err.Error()}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.store.List(ctx, models.CollectionBoards, boardQuery(ownerID, state))
	if err != nil {
		return nil, storeError("failed to list boards", err)
	}

	set := decodeBoards(docs)
	if set.Err != nil {
		return nil, fmt.Errorf("failed to decode boards: %w", set.Err)
	}
	return set.Boards, nil
}

// BoardSet is one delivery of a BoardStream. Boards holds every document
// that decoded; Err joins the decode failures of the rest, or reports why
// the set could not be read at all.
type BoardSet struct {
	Boards []*models.Board
	Err    error
}

func decodeBoards(docs []store.Document) BoardSet {
	set := BoardSet{Boards: make([]*models.Board, 0, len(docs))}
	var errs []error
	for _, doc := range docs {
		b, err := models.DecodeBoard(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("board %s: %w", doc.ID(), err))
			continue
		}
		set.Boards = append(set.Boards, b)
	}
	set.Err = errors.Join(errs...)
	return set
}

// BoardStream is a cancellable stream of full board sets.
type BoardStream struct {
	ctx     context.Context
	sub     *store.Subscription
	updates chan BoardSet
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Updates returns the delivery channel, closed once the stream ends.
func (bs *BoardStream) Updates() <-chan BoardSet {
	return bs.updates
}

// Cancel ends the stream. Safe to call more than once.
func (bs *BoardStream) Cancel() {
	bs.once.Do(func() {
		close(bs.done)
		bs.sub.Cancel()
	})
	<-bs.stopped
}

func (bs *BoardStream) run() {
	defer close(bs.stopped)
	defer close(bs.updates)

	for snap := range bs.sub.Updates() {
		var set BoardSet
		if snap.Err != nil {
			set.Err = fmt.Errorf("%w: %w", ErrStoreUnavailable, snap.Err)
		} else {
			set = decodeBoards(snap.Documents)
		}
		select {
		case bs.updates <- set:
		case <-bs.done:
			return
		case <-bs.ctx.Done():
			return
		}
	}
}

// ObserveBoards subscribes to the owner's boards in one state. The first set
// arrives immediately; later sets follow every change.
func (s *BoardService) ObserveBoards(ctx context.Context, ownerID string, state models.LifecycleState) (*BoardStream, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := models.ParseLifecycleState(string(state)); err != nil {
		return nil, validation.ValidationError{Field: "state", Message: err.Error()}
	}

	sub, err := s.store.Subscribe(ctx, models.CollectionBoards, boardQuery(ownerID, state))
	if err != nil {
		return nil, storeError("failed to subscribe to boards", err)
	}

	bs := &BoardStream{
		ctx:     ctx,
		sub:     sub,
		updates: make(chan BoardSet),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go bs.run()
	return bs, nil
}
