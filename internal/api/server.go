package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/metrics"
	"minutes/internal/pipeline"
	"minutes/internal/report"
	"minutes/internal/services"
	"minutes/internal/tasks"
	"minutes/internal/workflow"
)

const (
	maxUploadBytes = 2 << 30
	uploadDeadline = 10 * time.Minute
)

// TaskService is the workflow surface the server exposes.
type TaskService interface {
	Submit(ctx context.Context, audioPath string, opts pipeline.Options) (string, error)
	Status(id string) (tasks.Task, bool)
	Result(ctx context.Context, id string) (*report.MeetingReport, error)
	List() []tasks.Task
	Cleanup(ctx context.Context, maxAge time.Duration) tasks.CleanupResult
}

// Server hosts the control API.
type Server struct {
	bind       string
	token      string
	version    string
	uploadDir  string
	retention  time.Duration
	svc        TaskService
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
}

// ServerOption customizes the server.
type ServerOption func(*Server)

// WithMetrics exposes m on GET /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /api/health.
func WithVersion(version string) ServerOption {
	return func(s *Server) { s.version = version }
}

// WithClock overrides the health timestamp source.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer wires the routes. Bind address, token, upload directory and
// default cleanup age come from cfg.
func NewServer(cfg *config.Config, svc TaskService, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		svc:     svc,
		logger:  logging.NewComponentLogger(logger, "api"),
		now:     time.Now,
		version: "dev",
	}
	if cfg != nil {
		s.bind = strings.TrimSpace(cfg.Paths.APIBind)
		s.token = cfg.Paths.APIToken
		s.uploadDir = cfg.UploadsDir()
		s.retention = cfg.ResultRetention()
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/tasks", authMiddleware(s.token, s.handleSubmit))
	mux.HandleFunc("POST /api/uploads", authMiddleware(s.token, s.handleUpload))
	mux.HandleFunc("GET /api/tasks", authMiddleware(s.token, s.handleList))
	mux.HandleFunc("POST /api/tasks/cleanup", authMiddleware(s.token, s.handleCleanup))
	mux.HandleFunc("GET /api/tasks/{id}", authMiddleware(s.token, s.handleTask))
	mux.HandleFunc("GET /api/tasks/{id}/result", authMiddleware(s.token, s.handleResult))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.handler = mux

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler without a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr reports the bound listener address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens on the configured bind address and serves until ctx is
// cancelled or Stop is called. An empty bind disables the server.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String(logging.FieldEventType, "api_disabled"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "api listen", s.bind, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed",
				logging.String(logging.FieldErrorHint, "check api_bind and restart minutesd"),
				logging.String(logging.FieldImpact, "control API unavailable"),
				logging.Error(err),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active := 0
	if s.svc != nil {
		for _, task := range s.svc.List() {
			if task.Status == tasks.StatusProcessing {
				active++
			}
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    s.version,
		Message:    "minutes daemon is running",
		Timestamp:  s.now().UTC(),
		ActiveRuns: active,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req := SubmitRequest{Options: pipeline.DefaultOptions()}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id, err := s.svc.Submit(r.Context(), strings.TrimSpace(req.Path), req.Options)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		TaskID:  id,
		Status:  tasks.StatusPending,
		Message: "Analysis started",
	})
}

// handleUpload stores a multipart "file" part under the upload directory and
// submits it. Pipeline options travel as form fields.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploadDir == "" {
		s.writeError(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}
	_ = http.NewResponseController(w).SetReadDeadline(time.Now().Add(uploadDeadline))
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	opts, err := optionsFromForm(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file part: "+err.Error())
		return
	}
	defer file.Close()

	if !workflow.IsAllowedFile(header.Filename) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q (allowed: %s)",
			filepath.Ext(header.Filename), strings.Join(workflow.AllowedExtensions, ", ")))
		return
	}

	fileID := uuid.NewString()
	dest := filepath.Join(s.uploadDir, fileID+strings.ToLower(filepath.Ext(header.Filename)))
	if err := saveUpload(dest, file); err != nil {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "upload save failed", "upload_save_failed",
			logging.String(logging.FieldErrorHint, "check free space and permissions of the uploads directory"),
			logging.String(logging.FieldImpact, "upload rejected"),
			logging.String("path", dest),
			logging.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	id, err := s.svc.Submit(r.Context(), dest, opts)
	if err != nil {
		_ = os.Remove(dest)
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		TaskID:  id,
		FileID:  fileID,
		Status:  tasks.StatusPending,
		Message: "Analysis started",
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	list := s.svc.List()
	if list == nil {
		list = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: list})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.svc.Status(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, known := s.svc.Status(id)
	if known {
		switch task.Status {
		case tasks.StatusFailed:
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: task.Error, Kind: "task_failed"})
			return
		case tasks.StatusPending, tasks.StatusProcessing:
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error: fmt.Sprintf("result not ready (status %s, %d%%)", task.Status, task.Progress),
				Kind:  "not_ready",
			})
			return
		}
	}
	rep, err := s.svc.Result(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			msg := "Result not found"
			if !known {
				msg = "Task not found"
			}
			s.writeError(w, http.StatusNotFound, msg)
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.MaxAgeHours < 0 {
		s.writeError(w, http.StatusBadRequest, "max_age_hours must not be negative")
		return
	}
	maxAge := s.retention
	if req.MaxAgeHours > 0 {
		maxAge = time.Duration(req.MaxAgeHours * float64(time.Hour))
	}
	writeJSON(w, http.StatusOK, s.svc.Cleanup(r.Context(), maxAge))
}

func optionsFromForm(r *http.Request) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return opts, fmt.Errorf("invalid multipart form: %w", err)
	}
	if value := strings.TrimSpace(r.FormValue("num_speakers")); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return opts, fmt.Errorf("num_speakers: %w", err)
		}
		opts.NumSpeakers = n
	}
	opts.Language = strings.TrimSpace(r.FormValue("language"))
	for field, target := range map[string]*bool{
		"enable_emotion": &opts.EnableEmotion,
		"enable_context": &opts.EnableContext,
	} {
		value := strings.TrimSpace(r.FormValue(field))
		if value == "" {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return opts, fmt.Errorf("%s: %w", field, err)
		}
		*target = parsed
	}
	return opts, nil
}

func saveUpload(dest string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.logger, "api request failed", "api_request_failed",
			logging.String(logging.FieldErrorHint, "inspect the daemon log for the underlying error"),
			logging.String(logging.FieldImpact, "request rejected"),
			logging.Error(err),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
