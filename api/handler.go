package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/facturaIA/purchase-invoice-ingest/internal/auth"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/workflow"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Archiver stores original uploaded documents, links to them and removes them
type Archiver interface {
	Store(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	PresignedURL(ctx context.Context, objectPath string) (string, error)
	Remove(ctx context.Context, objectPath string) error
}

// Pinger reports database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the optional collaborators of a Handler
type Options struct {
	Archive  Archiver            // nil disables archiving
	Database Pinger              // nil means in-memory stores
	Auth     *auth.Authenticator // nil or disabled means every request acts as AnonymousUser
}

// AnonymousUser acts on sessions when authentication is disabled
var AnonymousUser = models.UserRef{ID: "anonymous"}

// Handler serves the purchase invoice workflow over HTTP
type Handler struct {
	config  *models.Config
	service *workflow.Service
	opts    Options
	logger  zerolog.Logger
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, service *workflow.Service, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		config:  config,
		service: service,
		opts:    opts,
		logger:  logger,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	api := router.PathPrefix("/api/purchase-invoices").Subrouter()
	if h.opts.Auth != nil && h.opts.Auth.Enabled() {
		api.Use(h.opts.Auth.Middleware)
	}

	api.HandleFunc("/preview", h.Preview).Methods("POST")

	// Session decisions
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.CancelSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/supplier", h.ResolveSupplier).Methods("POST")
	api.HandleFunc("/sessions/{id}/lines/{index:[0-9]+}", h.ResolveLine).Methods("POST")
	api.HandleFunc("/sessions/{id}/acknowledge", h.Acknowledge).Methods("POST")
	api.HandleFunc("/sessions/{id}/duplicate", h.ResolveDuplicate).Methods("POST")
	api.HandleFunc("/sessions/{id}/commit", h.Commit).Methods("POST")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Memory    MemoryStats       `json:"memory"`
	Database  ServiceStatus     `json:"database"`
	Storage   ServiceStatus     `json:"storage"`
	AI        map[string]string `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports process and dependency status. A configured database that
// does not answer marks the service degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	databaseStatus := h.checkDatabase(r.Context())
	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database: databaseStatus,
		Storage:  h.checkStorage(),
		AI: map[string]string{
			"defaultProvider": h.config.AI.DefaultProvider,
		},
	}

	if h.opts.Database != nil && !databaseStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if h.opts.Database == nil {
		return ServiceStatus{Available: false, Error: "running with in-memory stores"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.opts.Database.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{Available: true, Version: "PostgreSQL"}
}

func (h *Handler) checkStorage() ServiceStatus {
	if h.opts.Archive == nil {
		return ServiceStatus{Available: false, Error: "storage client not initialized"}
	}
	return ServiceStatus{Available: true, Version: "MinIO S3"}
}

// PreviewRequest is the JSON body of a preview call
type PreviewRequest struct {
	Text     string `json:"text"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	Method   string `json:"method"`
}

// Preview runs the pipeline on uploaded document text. It accepts JSON, or a
// multipart form with the original file (archived when storage is configured),
// its extracted text and the method.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	user := h.currentUser(r)
	startTime := time.Now()

	req, err := h.parsePreview(w, r)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.Preview(ctx, req, user)
	if err != nil {
		h.logger.Warn().Err(err).Str("file", req.FileName).Msg("preview.failed")
		h.writeError(w, err, sess)
		return
	}

	h.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("state", string(sess.State)).
		Dur("duration", time.Since(startTime)).
		Msg("preview.done")

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(workflow.NewView(sess))
}

func (h *Handler) parsePreview(w http.ResponseWriter, r *http.Request) (workflow.PreviewRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.parseMultipartPreview(r)
	}

	var body PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return workflow.PreviewRequest{}, errors.New("invalid request body")
	}
	method, err := parseMethod(body.Method)
	if err != nil {
		return workflow.PreviewRequest{}, err
	}
	return workflow.PreviewRequest{
		Text:     body.Text,
		FileName: body.FileName,
		FileSize: body.FileSize,
		Method:   method,
	}, nil
}

func (h *Handler) parseMultipartPreview(r *http.Request) (workflow.PreviewRequest, error) {
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return workflow.PreviewRequest{}, errors.New("file too large or invalid form data")
	}

	method, err := parseMethod(r.FormValue("method"))
	if err != nil {
		return workflow.PreviewRequest{}, err
	}
	req := workflow.PreviewRequest{Text: r.FormValue("text"), Method: method}

	file, header, err := r.FormFile("file")
	if err != nil {
		if req.Text == "" {
			return workflow.PreviewRequest{}, errors.New("no text or file provided")
		}
		return req, nil
	}
	defer file.Close()

	req.FileName = header.Filename
	req.FileSize = header.Size

	if h.opts.Archive != nil {
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/pdf"
		}
		path, err := h.opts.Archive.Store(r.Context(), header.Filename, file, header.Size, contentType)
		if err != nil {
			// Archiving is optional, the preview goes on without a source path
			h.logger.Warn().Err(err).Str("file", header.Filename).Msg("archive.failed")
		} else {
			req.SourcePath = path
		}
	}
	return req, nil
}

func parseMethod(raw string) (models.ExtractionMethod, error) {
	if raw == "" {
		return models.MethodAI, nil
	}
	method := models.ExtractionMethod(strings.ToLower(strings.TrimSpace(raw)))
	if !method.Valid() {
		return "", fmt.Errorf("unsupported method %q (use ai or ocr)", raw)
	}
	return method, nil
}

// currentUser returns the authenticated user, or AnonymousUser when auth is disabled
func (h *Handler) currentUser(r *http.Request) models.UserRef {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user
	}
	return AnonymousUser
}

// ErrorResponse is the body of every failed call
type ErrorResponse struct {
	Error      string                      `json:"error"`
	Reason     string                      `json:"reason,omitempty"`
	Fields     []string                    `json:"fields,omitempty"`
	Duplicates []models.DuplicateCandidate `json:"duplicates,omitempty"`
	Session    *workflow.View              `json:"session,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	var (
		extractionErr *models.ExtractionError
		duplicateErr  *models.DuplicateInvoiceError
		transitionErr *models.TransitionError
		validationErr *models.ValidationError
	)
	switch {
	case errors.As(err, &extractionErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &duplicateErr), errors.As(err, &transitionErr):
		return http.StatusConflict
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err with its status; sess, when not nil, is included as a view
func (h *Handler) writeError(w http.ResponseWriter, err error, sess *workflow.Session) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var extractionErr *models.ExtractionError
	if errors.As(err, &extractionErr) {
		resp.Reason = extractionErr.Reason
		resp.Fields = extractionErr.Fields
	}
	var duplicateErr *models.DuplicateInvoiceError
	if errors.As(err, &duplicateErr) {
		resp.Duplicates = duplicateErr.Existing
	}
	if sess != nil {
		view := workflow.NewView(sess)
		resp.Session = &view
	}
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request.failed")
		resp.Error = "internal error"
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
