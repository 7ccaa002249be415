// Package api exposes the collection and its backup over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dharsanguruparan/Waypoint/internal/backup"
	"github.com/dharsanguruparan/Waypoint/internal/collection"
	"github.com/dharsanguruparan/Waypoint/internal/localdb"
	"github.com/dharsanguruparan/Waypoint/internal/logging"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/queue"
	"github.com/dharsanguruparan/Waypoint/internal/signing"
)

// Backup is the part of *backup.Orchestrator served over HTTP.
type Backup interface {
	Status() backup.Status
	List(ctx context.Context) ([]model.RemoteFile, error)
	Upload(ctx context.Context) ([]model.RemoteFile, error)
	Restore(ctx context.Context, files []model.RemoteFile) (*model.Snapshot, error)
}

// Collection is the read side of *collection.Service.
type Collection interface {
	List(ctx context.Context) ([]collection.Entry, error)
	Get(ctx context.Context, id string) (collection.Entry, error)
	Options(ctx context.Context) (model.Options, error)
	Photo(ctx context.Context, id string) ([]byte, error)
}

// Queue hands backup work to the worker.
type Queue interface {
	EnqueueUpload(ctx context.Context) (string, error)
	EnqueueDownload(ctx context.Context, payload queue.DownloadPayload) (string, error)
}

// Server exposes HTTP endpoints for the collection and its backup.
type Server struct {
	addr    string
	records Collection
	backup  Backup
	queue   Queue
	log     logging.Logger
	signer  *signing.Signer
	linkTTL time.Duration
	server  *http.Server
	once    sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithPhotoLinks serves record photos behind links signed by signer and
// valid for ttl. Without it the photo routes are not mounted.
func WithPhotoLinks(signer *signing.Signer, ttl time.Duration) Option {
	return func(s *Server) {
		s.signer = signer
		s.linkTTL = ttl
	}
}

// New constructs a Server. q may be nil, in which case async requests are
// rejected.
func New(addr string, records Collection, b Backup, q Queue, log logging.Logger, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		records: records,
		backup:  b,
		queue:   q,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/records", s.handleRecords)
	r.Get("/records/{id}", s.handleRecord)
	if s.signer != nil {
		r.Get("/records/{id}/photo-url", s.handlePhotoURL)
		r.Get("/records/{id}/photo", s.handlePhoto)
	}
	r.Get("/options", s.handleOptions)
	r.Route("/backup", func(r chi.Router) {
		r.Get("/", s.handleBackupInfo)
		r.Post("/", s.handleUpload)
		r.Get("/state", s.handleState)
	})
	r.Post("/restore", s.handleRestore)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.addr,
			Handler:           s.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info(ctx, "api listening", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	entries, err := s.records.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, entries)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	entry, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, entry)
}

func (s *Server) handlePhotoURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.records.Get(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	link := url.URL{
		Path:     "/records/" + id + "/photo",
		RawQuery: s.signer.Query(id, s.linkTTL).Encode(),
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"url": link.String()})
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.signer.Verify(id, r.URL.Query()); err != nil {
		s.respondJSON(w, r, http.StatusForbidden, map[string]string{"error": err.Error()})
		return
	}
	data, err := s.records.Photo(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.records.Options(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, opts)
}

func (s *Server) handleBackupInfo(w http.ResponseWriter, r *http.Request) {
	files, err := s.backup.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, backup.Describe(files))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, s.backup.Status())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if async(r) {
		if s.queue == nil {
			http.Error(w, "queue not configured", http.StatusServiceUnavailable)
			return
		}
		id, err := s.queue.EnqueueUpload(ctx)
		if err != nil {
			s.log.Error(ctx, "enqueue upload", "err", err)
			http.Error(w, "failed to queue job", http.StatusInternalServerError)
			return
		}
		s.respondJSON(w, r, http.StatusAccepted, map[string]string{"task": id})
		return
	}
	files, err := s.backup.Upload(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, backup.Describe(files))
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if async(r) {
		if s.queue == nil {
			http.Error(w, "queue not configured", http.StatusServiceUnavailable)
			return
		}
		id, err := s.queue.EnqueueDownload(ctx, queue.DownloadPayload{})
		if err != nil {
			s.log.Error(ctx, "enqueue restore", "err", err)
			http.Error(w, "failed to queue job", http.StatusInternalServerError)
			return
		}
		s.respondJSON(w, r, http.StatusAccepted, map[string]string{"task": id})
		return
	}
	files, err := s.backup.List(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	snap, err := s.backup.Restore(ctx, files)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]int{"records": len(snap.Collection.Records)})
}

func async(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return v
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, backup.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, backup.ErrBackupNotFound),
		errors.Is(err, localdb.ErrRecordNotFound),
		errors.Is(err, collection.ErrNoPhoto):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrBackupCorrupt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backup.ErrAssetMissingRemotely):
		return http.StatusFailedDependency
	case errors.Is(err, backup.ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	s.respondJSON(w, r, status, map[string]string{"error": err.Error()})
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn(r.Context(), "encode response", "err", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
