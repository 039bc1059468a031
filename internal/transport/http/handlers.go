package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/logger"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
)

// UserIDHeader carries the authenticated user id set by the gateway in front of this service.
const UserIDHeader = "X-User-ID"

var (
	errMissingUser    = fmt.Errorf("missing user id: %w", domain.ErrIneligible)
	errInvalidPayload = errors.New("invalid request payload")
)

type Handler struct {
	service *app.ContestService
	streams *app.StreamController
}

func NewHandler(service *app.ContestService, streams *app.StreamController) *Handler {
	return &Handler{service: service, streams: streams}
}

type joinResponse struct {
	ContestID string `json:"contestId"`
	UserID    string `json:"userId"`
}

type submitRequest struct {
	QuestionID string   `json:"questionId"`
	OptionIDs  []string `json:"optionIds"`
}

type submitResponse struct {
	QuestionID string `json:"questionId"`
	Score      int    `json:"score"`
}

type viewersResponse struct {
	ContestID string `json:"contestId"`
	Viewers   int    `json:"viewers"`
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "id")
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, errMissingUser)
		return
	}

	eligible, err := h.service.CheckEligibility(r.Context(), contestID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Join(r.Context(), contestID, userID, eligible); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{ContestID: contestID, UserID: userID})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "id")
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, errMissingUser)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == "" {
		http.Error(w, errInvalidPayload.Error(), http.StatusBadRequest)
		return
	}

	submission, err := h.service.Submit(r.Context(), contestID, userID, req.QuestionID, req.OptionIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{QuestionID: submission.QuestionID, Score: submission.Score})
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	board, err := h.service.Leaderboard(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) Viewers(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "id")
	n, err := h.streams.Viewers(r.Context(), contestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewersResponse{ContestID: contestID, Viewers: n})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warningf("write response: %v", err)
	}
}

// writeError answers with the status of the error's kind and an ErrorPayload body.
func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, app.NewErrorPayload(err))
}

func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindIneligible:
		return http.StatusForbidden
	case domain.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
