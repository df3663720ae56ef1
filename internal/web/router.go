package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the local API: session and ride handlers, the websocket
// hub under /ws, health and metrics. Session and ride routes take JSON only
// and refuse writes from origins outside origins.
func NewRouter(sessions *SessionHandler, rideHandler *RideHandler, ws http.Handler, origins OriginPolicy) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "campus-rides"})
	})
	r.Handle("/metrics", promhttp.Handler())
	if ws != nil {
		r.Mount("/ws", ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequestLogger)
		r.Use(origins.Guard)
		r.Use(chimw.AllowContentType("application/json"))
		r.Mount("/session", sessions.Routes())
		r.Mount("/rides", rideHandler.Routes())
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
