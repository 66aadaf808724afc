package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/service"
	"stickerboard/internal/validation"
)

const streamKeepAlive = 30 * time.Second

// BoardHandler handles sticker board requests
type BoardHandler struct {
	boardService *service.BoardService
	log          *zap.Logger
}

// NewBoardHandler creates a new board handler
func NewBoardHandler(boardService *service.BoardService, log *zap.Logger) *BoardHandler {
	return &BoardHandler{
		boardService: boardService,
		log:          log,
	}
}

type createBoardRequest struct {
	Title          string `json:"title"`
	TotalSlots     int    `json:"totalSlots"`
	RewardImageRef string `json:"rewardImageRef,omitempty"`
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

type boardsResponse struct {
	Boards []*models.Board `json:"boards"`
}

func callerID(r *http.Request) string {
	id, ok := service.IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return id.ID
}

// stateParam reads the ?state= filter, defaulting to active boards.
func stateParam(r *http.Request) (models.LifecycleState, error) {
	raw := r.URL.Query().Get("state")
	if raw == "" {
		return models.StateActive, nil
	}
	state, err := models.ParseLifecycleState(raw)
	if err != nil {
		return "", validation.ValidationError{Field: "state", Message: err.Error()}
	}
	return state, nil
}

// loadBoard fetches the board named in the path for the caller
func (h *BoardHandler) loadBoard(w http.ResponseWriter, r *http.Request) (*models.Board, bool) {
	board, err := h.boardService.GetBoard(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, h.log, "failed to load board", err)
		return nil, false
	}
	return board, true
}

// List returns the caller's boards in one lifecycle state
func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	state, err := stateParam(r)
	if err != nil {
		respondWithServiceError(w, h.log, "", err)
		return
	}

	boards, err := h.boardService.ListBoards(r.Context(), callerID(r), state)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to list boards", err)
		return
	}
	if boards == nil {
		boards = []*models.Board{}
	}
	respondJSON(w, http.StatusOK, boardsResponse{Boards: boards})
}

// Get returns one board
func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	board, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, board)
}

// Create creates a new active board
func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBoardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	board, err := h.boardService.CreateBoard(r.Context(), callerID(r), req.Title, req.TotalSlots, req.RewardImageRef)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to create board", err)
		return
	}
	respondJSON(w, http.StatusCreated, board)
}

// Adjust adds or removes stickers
func (h *BoardHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	board, ok := h.loadBoard(w, r)
	if !ok {
		return
	}

	board, err := h.boardService.AdjustCount(r.Context(), callerID(r), board, req.Delta)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to adjust board", err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

// Archive moves a complete board to history
func (h *BoardHandler) Archive(w http.ResponseWriter, r *http.Request) {
	board, ok := h.loadBoard(w, r)
	if !ok {
		return
	}

	board, err := h.boardService.ArchiveBoard(r.Context(), callerID(r), board)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to archive board", err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

// Update changes title, slot count or reward image
func (h *BoardHandler) Update(w http.ResponseWriter, r *http.Request) {
	var settings service.BoardSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	board, ok := h.loadBoard(w, r)
	if !ok {
		return
	}

	board, err := h.boardService.UpdateBoardSettings(r.Context(), callerID(r), board, settings)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to update board", err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

// Delete removes a board
func (h *BoardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.boardService.DeleteBoard(r.Context(), callerID(r), r.PathValue("id")); err != nil {
		respondWithServiceError(w, h.log, "failed to delete board", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream sends the caller's boards as server-sent events: a "boards" event
// carrying the full set after every change, or an "error" event when a set
// could not be read.
func (h *BoardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	state, err := stateParam(r)
	if err != nil {
		respondWithServiceError(w, h.log, "", err)
		return
	}

	stream, err := h.boardService.ObserveBoards(r.Context(), callerID(r), state)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to observe boards", err)
		return
	}
	defer stream.Cancel()

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("write deadline not supported", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Warn("streaming not supported", zap.Error(err))
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case set, ok := <-stream.Updates():
			if !ok {
				return
			}
			if err := writeBoardSet(w, set); err != nil {
				h.log.Debug("board stream closed", zap.Error(err))
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeBoardSet(w http.ResponseWriter, set service.BoardSet) error {
	event, payload := "boards", interface{}(boardsResponse{Boards: set.Boards})
	if set.Err != nil {
		_, msg := statusForError(set.Err)
		event, payload = "error", errorResponse{Error: msg}
	}
	if event == "boards" && set.Boards == nil {
		payload = boardsResponse{Boards: []*models.Board{}}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	return nil
}
