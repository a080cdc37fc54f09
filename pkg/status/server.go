package status

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler serves a Panel over HTTP:
//
//	GET /             standalone page with meta refresh
//	GET /panel        the status element alone
//	GET /status.json  the current state as JSON
func Handler(panel *Panel) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeHTML(w, panel.Page())
	})
	r.Get("/panel", func(w http.ResponseWriter, _ *http.Request) {
		writeHTML(w, panel.HTML())
	})
	r.Get("/status.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(panel.Current())
	})
	return r
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, body)
}
