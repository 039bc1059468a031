package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"quiz-battle/internal/app"
)

// NewRouter mounts the contest API, the NDJSON and websocket streams and a health check.
func NewRouter(service *app.ContestService, streams *app.StreamController) http.Handler {
	api := NewHandler(service, streams)
	ws := NewWSHandler(service, streams)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", UserIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Route("/contests/{id}", func(r chi.Router) {
		r.Post("/join", api.Join)
		r.Post("/submit", api.Submit)
		r.Get("/stream", api.Stream)
		r.Get("/leaderboard", api.Leaderboard)
		r.Get("/results", api.Results)
		r.Get("/viewers", api.Viewers)
	})
	return r
}
