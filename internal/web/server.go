// Package web serves the dashboard: a small status page plus a live
// activity feed over server-sent events.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mhdawson/MqttDlnaPlay/internal/activity"
)

const (
	pageWidth  = 400
	pageHeight = 200
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 8px; width: {{.Width}}px; }
h1 { font-size: 1.1em; }
#activity { height: {{.Height}}px; overflow-y: scroll; font-size: 0.8em;
  border: 1px solid #ccc; padding: 4px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div id="activity"></div>
<script>
const pane = document.getElementById('activity');
const source = new EventSource('events');
source.onmessage = function(event) {
  const entry = JSON.parse(event.data);
  const line = document.createElement('div');
  line.textContent = entry.at + ': ' + entry.text;
  pane.appendChild(line);
  pane.scrollTop = pane.scrollHeight;
};
</script>
</body>
</html>
`

type Server struct {
	title   string
	log     *activity.Log
	logger  *slog.Logger
	page    *template.Template
	httpSrv *http.Server
}

func NewServer(listen, title string, log *activity.Log, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		title:  title,
		log:    log,
		logger: logger,
		page:   template.Must(template.New("page").Parse(pageTemplate)),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/", s.handlePage)
	router.Get("/events", s.handleEvents)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.page.Execute(w, map[string]any{
		"Title":  s.title,
		"Width":  pageWidth,
		"Height": pageHeight,
	})
	if err != nil {
		s.logger.Error("page_render_failed", slog.String("error", err.Error()))
	}
}

// handleEvents replays the retained history and then streams live
// entries until the viewer disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	live, cancel := s.log.Subscribe()
	defer cancel()

	for _, entry := range s.log.Snapshot() {
		if err := writeEvent(w, entry); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-live:
			if !ok {
				return
			}
			if err := writeEvent(w, entry); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, entry activity.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
