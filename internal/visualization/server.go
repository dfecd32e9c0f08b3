package visualization

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
)

// Server serves the HTML report for one run plus a small JSON API.
type Server struct {
	title      string
	pop        *population.Population
	history    []models.DayCounts
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a report server for a completed run.
func NewServer(title string, pop *population.Population, history []models.DayCounts) *Server {
	return &Server{
		title:   title,
		pop:     pop,
		history: history,
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/network", s.handleNetwork)
	mux.HandleFunc("/api/day", s.handleDay)

	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleIndex serves the report page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := RenderHTML(s.title, s.pop, s.history)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// handleNetwork returns the final contact network.
func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, RenderJSON(s.pop))
}

// handleDay returns the counts recorded for ?day=N (1-based).
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("day")
	if raw == "" {
		http.Error(w, "missing 'day' query parameter", http.StatusBadRequest)
		return
	}
	day, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "invalid day: "+raw, http.StatusBadRequest)
		return
	}
	if day < 1 || day > len(s.history) {
		http.Error(w, fmt.Sprintf("day %d outside 1..%d", day, len(s.history)), http.StatusNotFound)
		return
	}
	writeJSON(w, s.history[day-1])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
