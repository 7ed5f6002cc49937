package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tweetvault/tweetvault/pkg/archive"
	"github.com/tweetvault/tweetvault/pkg/search"
	"github.com/tweetvault/tweetvault/pkg/tweets"
)

const (
	dateLayout        = "2006-01-02"
	maxUploadBytes    = 256 << 20
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Server exposes the archive over HTTP: keyword and query-language search,
// reply hierarchies, and zip uploads.
type Server struct {
	httpServer *http.Server
	search     *search.Service
	resolver   *tweets.HierarchyResolver
	importer   *archive.Importer
	logger     *slog.Logger
}

// NewServer creates the HTTP server listening on addr.
func NewServer(addr string, searchSvc *search.Service, resolver *tweets.HierarchyResolver, importer *archive.Importer, logger *slog.Logger) *Server {
	s := &Server{
		search:   searchSvc,
		resolver: resolver,
		importer: importer,
		logger:   logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers without a listener.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/search", s.handleSearch).Methods("GET")
	r.HandleFunc("/extendedSearch", s.handleExtendedSearch).Methods("GET")
	r.HandleFunc("/tweets/{tweetId:[0-9]+}", s.handleHierarchy).Methods("GET")
	r.HandleFunc("/upload", s.handleUpload).Methods("POST")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	return r
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	from, err := dateParam(r, "from")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.search.SearchKeywords(r.Context(), q, from, to)
	if err != nil {
		if errors.Is(err, search.ErrBlankKeywords) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.Error("keyword search failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("search failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleExtendedSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	results, err := s.search.SearchQuery(r.Context(), q)
	if err != nil {
		if errors.Is(err, search.ErrBlankKeywords) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.Error("extended search failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("search failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["tweetId"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tweet id %q", idStr))
		return
	}

	results, err := s.resolver.Resolve(r.Context(), id)
	if err != nil {
		s.logger.Error("hierarchy resolution failed", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("hierarchy resolution failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart request: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("missing file"))
		return
	}
	defer file.Close()

	count, err := s.importer.ImportZip(r.Context(), file, header.Size)
	if err != nil {
		s.logger.Error("archive import failed", "file", header.Filename, "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("archive import failed"))
		return
	}

	s.logger.Info("archive imported", "file", header.Filename, "count", count)
	s.writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func dateParam(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q, want YYYY-MM-DD", name, v)
	}
	return &t, nil
}
