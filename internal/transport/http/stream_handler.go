package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"quiz-battle/internal/app"
)

const streamWriteWait = 10 * time.Second

// Stream serves the contest event stream as newline-delimited JSON, one event per line.
// A contest that cannot be streamed is answered with its error status and a single ERROR line.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	contest, err := h.streams.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(statusOf(err))
		_ = json.NewEncoder(w).Encode(app.ErrorEvent(err))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	emit := app.EmitterFunc(func(event app.Event) error {
		// Not every writer supports deadlines; the stream still works without one.
		_ = rc.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := enc.Encode(event); err != nil {
			return err
		}
		return rc.Flush()
	})
	_ = h.streams.Stream(r.Context(), contest, emit)
}
