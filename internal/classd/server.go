package classd

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"github.com/five82/tally/internal/clock"
)

const (
	defaultCacheTTL   = 2 * time.Second
	defaultSessionTTL = 24 * time.Hour
	purgeInterval     = 10 * time.Minute
)

// Options configure a Server.
type Options struct {
	// CacheTTL is how long snapshot bodies are served from memory. Negative
	// disables the cache; zero uses the default.
	CacheTTL time.Duration
	// SessionTTL is the lifetime of a new or extended session.
	SessionTTL time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Server is the reference class session store.
type Server struct {
	repo       *repo
	cache      *snapshotCache
	clock      clock.Clock
	logger     *slog.Logger
	sessionTTL time.Duration
}

// New builds a Server on an open database (see OpenDB).
func New(db *sql.DB, opts Options) *Server {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		repo:       &repo{db: db},
		cache:      newSnapshotCache(opts.CacheTTL),
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "classd"),
		sessionTTL: opts.SessionTTL,
	}
}

// Handler returns the HTTP API with request logging and gzip compression.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.Methods(http.MethodPost).Path("/api/sessions").HandlerFunc(s.createSession)
	api := r.PathPrefix("/api/sessions").Subrouter()
	api.Methods(http.MethodGet).Path("/{code}").HandlerFunc(s.lookupSession)
	api.Methods(http.MethodGet).Path("/{code}/snapshot").HandlerFunc(s.snapshot)
	api.Methods(http.MethodPost).Path("/{code}/data").HandlerFunc(s.writeData)
	api.Methods(http.MethodPost).Path("/{code}/delete-point").HandlerFunc(s.deletePoint)
	api.Methods(http.MethodPost).Path("/{code}/delete-group-data").HandlerFunc(s.deleteGroupData)
	api.Methods(http.MethodPost).Path("/{code}/delete-all").HandlerFunc(s.deleteAll)
	api.Methods(http.MethodPost).Path("/{code}/variables/{index:[0-9]+}").HandlerFunc(s.renameVariable)
	api.Methods(http.MethodPost).Path("/{code}/groups").HandlerFunc(s.addGroup)
	api.Methods(http.MethodPost).Path("/{code}/groups/{index:[0-9]+}").HandlerFunc(s.changeGroup)
	api.Methods(http.MethodPost).Path("/{code}/enabled").HandlerFunc(s.setEnabled)
	api.Methods(http.MethodPost).Path("/{code}/extend").HandlerFunc(s.extend)

	return gzhttp.GzipHandler(r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// Serve listens on addr until ctx is cancelled, purging expired sessions in
// the background.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Purge(ctx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		}
	}
}

// Purge deletes expired sessions and stale cache entries.
func (s *Server) Purge(ctx context.Context) {
	now := s.clock.Now()
	s.cache.sweep(now)
	n, err := s.repo.purgeExpired(ctx, now)
	if err != nil {
		s.logger.Error("purge expired sessions failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("purged expired sessions", "count", n)
	}
}
