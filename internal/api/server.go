// Package api exposes the pipeline over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/domain"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/pipeline"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/storage"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// DefaultMaxBodyBytes bounds JSON request bodies
const DefaultMaxBodyBytes = 32 << 20

// CorpusOpener turns a corpus file into a source
type CorpusOpener interface {
	Open(ctx context.Context, path string) (*corpus.Source, error)
	IsSupported(ext string) bool
}

// UploadStore keeps uploaded corpus files
type UploadStore interface {
	BasePath() string
	SaveUpload(ctx context.Context, fileID string, filename string, reader io.Reader) (*storage.FileMetadata, error)
}

// RunReader reads the run history
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Server serves the pipeline endpoints
type Server struct {
	pipelines *pipeline.Service
	readers   CorpusOpener
	uploads   UploadStore
	runs      RunReader
	logger    *slog.Logger
	maxBody   int64
	version   string
}

// Option configures a Server
type Option func(*Server)

// WithCorpusReaders lets requests reference corpus files
func WithCorpusReaders(readers CorpusOpener) Option {
	return func(s *Server) {
		s.readers = readers
	}
}

// WithUploads enables corpus uploads
func WithUploads(uploads UploadStore) Option {
	return func(s *Server) {
		s.uploads = uploads
	}
}

// WithRuns enables the run history endpoints
func WithRuns(runs RunReader) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

// WithVersion sets the version reported by the health endpoint
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a server running pipelines opened through pipelines
func NewServer(pipelines *pipeline.Service, opts ...Option) *Server {
	s := &Server{
		pipelines: pipelines,
		logger:    slog.Default(),
		maxBody:   DefaultMaxBodyBytes,
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pipeline_processing", s.handlePipelineSequence)
	mux.HandleFunc("POST /pipeline_processing_by_specific_process", s.handleSpecificProcess)
	mux.HandleFunc("POST /uploads", s.handleUpload)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.recoverer(s.requestLogger(unmatched(mux)))
}

// routeMethods are the methods the routes are registered with
var routeMethods = []string{http.MethodGet, http.MethodPost}

// unmatched answers requests no route matches with the JSON error body
// instead of the plain text of ServeMux
func unmatched(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}

		var allowed []string
		for _, method := range routeMethods {
			alt := r.Clone(r.Context())
			alt.Method = method
			if _, pattern := mux.Handler(alt); pattern != "" {
				allowed = append(allowed, method)
			}
		}
		if len(allowed) == 0 {
			writeError(w, apperrors.NotFound(fmt.Sprintf("no route for %s", r.URL.Path)))
			return
		}
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeError(w, apperrors.New(apperrors.ErrCodeBadRequest,
			fmt.Sprintf("method %s is not allowed on %s", r.Method, r.URL.Path),
			http.StatusMethodNotAllowed))
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic while handling request",
					slog.String("path", r.URL.Path),
					slog.Any("panic", v))
				writeError(w, fmt.Errorf("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
