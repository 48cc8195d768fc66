package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/dubbing-merge-service/internal/assessment"
	"github.com/skypro1111/dubbing-merge-service/internal/audio"
	"github.com/skypro1111/dubbing-merge-service/internal/config"
	"github.com/skypro1111/dubbing-merge-service/internal/metrics"
	"github.com/skypro1111/dubbing-merge-service/internal/session"
	"github.com/skypro1111/dubbing-merge-service/internal/store"
	"github.com/skypro1111/dubbing-merge-service/internal/timeline"
	"github.com/skypro1111/dubbing-merge-service/internal/vad"
)

const defaultMaxUploadBytes = 10 << 20

// ShareLookup reads share records
type ShareLookup interface {
	GetShareByHash(ctx context.Context, hash string) (store.Share, error)
	ListShares(ctx context.Context, lessonID string) ([]store.Share, error)
}

// FileReader reads stored recordings by their relative path
type FileReader interface {
	Read(rel string) ([]byte, error)
}

// Dependencies are the components served by the HTTP API. Sessions and
// Metrics are required; the rest may be nil when disabled.
type Dependencies struct {
	Sessions   *session.Manager
	UDP        *UDPServer
	Shares     ShareLookup
	Files      FileReader
	Assessment *assessment.Client
	Detector   *vad.Detector
	Metrics    *metrics.Metrics
}

// HTTPServer provides the session API plus monitoring endpoints
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	config  *config.Config

	sessions   *session.Manager
	udpServer  *UDPServer
	shares     ShareLookup
	files      FileReader
	assessment *assessment.Client
	detector   *vad.Detector
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, deps Dependencies) *HTTPServer {
	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessions:   deps.Sessions,
		udpServer:  deps.UDP,
		shares:     deps.Shares,
		files:      deps.Files,
		assessment: deps.Assessment,
		detector:   deps.Detector,
		metrics:    deps.Metrics,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: appConfig.HTTP.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, mainly for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Sessions
	mux.HandleFunc("POST /sessions", h.withMetrics("/sessions", h.handleCreateSession))
	mux.HandleFunc("GET /sessions", h.withMetrics("/sessions", h.handleListSessions))
	mux.HandleFunc("GET /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleGetSession))
	mux.HandleFunc("DELETE /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleDeleteSession))
	mux.HandleFunc("PUT /sessions/{id}/recordings/{sentence}",
		h.withMetrics("/sessions/{id}/recordings/{sentence}", h.handlePutRecording))
	mux.HandleFunc("GET /sessions/{id}/assessments",
		h.withMetrics("/sessions/{id}/assessments", h.handleAssessments))
	mux.HandleFunc("POST /sessions/{id}/merge", h.withMetrics("/sessions/{id}/merge", h.handleMerge))

	// Stored recordings
	mux.HandleFunc("GET /shares/{hash}", h.withMetrics("/shares/{hash}", h.handleGetShare))
	mux.HandleFunc("GET /lessons/{lesson}/shares", h.withMetrics("/lessons/{lesson}/shares", h.handleListShares))

	// Monitoring
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// createSessionRequest is the body of POST /sessions. The full utterance
// span is taken from Full, from a sentence with ID -1, or derived from the
// first and last sentence, in that order.
type createSessionRequest struct {
	CourseID  string              `json:"course_id"`
	LessonID  string              `json:"lesson_id"`
	UserName  string              `json:"user_name"`
	Language  string              `json:"language"`
	Sentences []timeline.Sentence `json:"sentences"`
	Full      *timeline.Sentence  `json:"full,omitempty"`
}

func (req *createSessionRequest) spans() ([]timeline.Sentence, timeline.Sentence) {
	var full *timeline.Sentence
	if req.Full != nil {
		f := *req.Full
		full = &f
	}

	sentences := make([]timeline.Sentence, 0, len(req.Sentences))
	for _, s := range req.Sentences {
		if s.ID == timeline.FullUtteranceID {
			if full == nil {
				f := s
				full = &f
			}
			continue
		}
		sentences = append(sentences, s)
	}

	if full == nil {
		derived := timeline.Sentence{ID: timeline.FullUtteranceID}
		if len(sentences) > 0 {
			derived.Start = sentences[0].Start
			derived.End = sentences[len(sentences)-1].End
		}
		full = &derived
	}
	full.ID = timeline.FullUtteranceID

	return sentences, *full
}

// handleCreateSession implements POST /sessions
func (h *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.LessonID == "" {
		http.Error(w, "lesson_id is required", http.StatusBadRequest)
		return
	}

	sentences, full := req.spans()
	lesson := session.LessonInfo{
		CourseID: req.CourseID,
		LessonID: req.LessonID,
		UserName: req.UserName,
		Language: req.Language,
	}

	s, err := h.sessions.CreateSession(lesson, sentences, full)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.Info())
}

// handleListSessions implements GET /sessions
func (h *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.ListSessions()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleGetSession implements GET /sessions/{id}
func (h *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.GetSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":   s.Info(),
		"sentences": s.Sentences(),
		"full":      s.Full(),
	})
}

// handleDeleteSession implements DELETE /sessions/{id}
func (h *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.RemoveSession(r.PathValue("id")) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handlePutRecording implements PUT /sessions/{id}/recordings/{sentence}
func (h *HTTPServer) handlePutRecording(w http.ResponseWriter, r *http.Request) {
	sentenceID, err := strconv.Atoi(r.PathValue("sentence"))
	if err != nil {
		http.Error(w, "Invalid sentence ID", http.StatusBadRequest)
		return
	}

	limit := h.config.HTTP.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Recording exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read recording: "+err.Error(), http.StatusBadRequest)
		return
	}

	sessionID := r.PathValue("id")
	if err := h.sessions.PutRecording(sessionID, sentenceID, data, r.Header.Get("Content-Type")); err != nil {
		h.writeError(w, err)
		return
	}

	s, ok := h.sessions.GetSession(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, s.Info())
}

// handleAssessments implements GET /sessions/{id}/assessments
func (h *HTTPServer) handleAssessments(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.GetSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":   s.AssessmentSummary(),
		"sentences": s.Assessments(),
	})
}

// handleMerge implements POST /sessions/{id}/merge. The merged WAV is the
// body; its hash, duration and substituted sentences go in headers.
func (h *HTTPServer) handleMerge(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Merge(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", audio.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Recording-Hash", result.Hash)
	w.Header().Set("X-Recording-Duration", strconv.FormatFloat(result.Duration, 'f', 3, 64))
	w.Header().Set("X-Recording-Sample-Rate", strconv.Itoa(result.SampleRate))
	w.Header().Set("X-Recording-Substituted", joinInts(result.Substituted))
	if result.ShareID != 0 {
		w.Header().Set("X-Share-ID", strconv.FormatInt(result.ShareID, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		h.logger.Warn("Failed to write merged recording",
			slog.String("session_id", result.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

// handleGetShare implements GET /shares/{hash}
func (h *HTTPServer) handleGetShare(w http.ResponseWriter, r *http.Request) {
	if h.shares == nil || h.files == nil {
		http.Error(w, "Share storage is not configured", http.StatusServiceUnavailable)
		return
	}

	share, err := h.shares.GetShareByHash(r.Context(), r.PathValue("hash"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := h.files.Read(share.Path)
	if err != nil {
		h.logger.Error("Failed to read stored recording",
			slog.String("hash", share.Hash),
			slog.String("path", share.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Stored recording unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", audio.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Recording-Hash", share.Hash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleListShares implements GET /lessons/{lesson}/shares
func (h *HTTPServer) handleListShares(w http.ResponseWriter, r *http.Request) {
	if h.shares == nil {
		http.Error(w, "Share storage is not configured", http.StatusServiceUnavailable)
		return
	}

	shares, err := h.shares.ListShares(r.Context(), r.PathValue("lesson"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lesson_id": r.PathValue("lesson"),
		"total":     len(shares),
		"shares":    shares,
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"session_manager": map[string]interface{}{
			"status":          "running",
			"active_sessions": h.sessions.GetActiveSessionCount(),
		},
	}

	if h.udpServer != nil {
		udpStats := h.udpServer.GetStatistics()
		components["udp_server"] = map[string]interface{}{
			"status":            "running",
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
		}
	}

	if h.assessment != nil {
		stats := h.assessment.GetStats()
		components["assessment"] = map[string]interface{}{
			"status":          "running",
			"total_requests":  stats.TotalRequests,
			"success_rate":    stats.SuccessRate,
			"active_requests": stats.ActiveRequests,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "dubbing-merge-service",
			"version": "1.0.0",
		},
		"components": components,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"enabled":      h.config.Server.Enabled,
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
			"workers":      h.config.Server.Workers,
			"queue_size":   h.config.Server.QueueSize,
		},
		"http": map[string]interface{}{
			"port":             h.config.HTTP.Port,
			"address":          h.config.HTTP.Address,
			"max_upload_bytes": h.config.HTTP.MaxUploadBytes,
		},
		"audio": map[string]interface{}{
			"output_sample_rate":   h.config.Audio.OutputSampleRate,
			"capture_sample_rate":  h.config.Audio.CaptureSampleRate,
			"max_take_duration":    h.config.Audio.MaxTakeDuration,
			"session_timeout":      h.config.Audio.SessionTimeout,
			"require_all_recorded": h.config.Audio.RequireAllRecorded,
			"silence_threshold":    h.config.Audio.SilenceThreshold,
			"trim_padding":         h.config.Audio.TrimPadding,
		},
		"assessment": map[string]interface{}{
			"enabled":        h.config.Assessment.Enabled,
			"endpoint":       h.config.Assessment.Endpoint,
			"language":       h.config.Assessment.Language,
			"timeout":        h.config.Assessment.Timeout,
			"max_retries":    h.config.Assessment.MaxRetries,
			"max_concurrent": h.config.Assessment.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"events": map[string]interface{}{
			"enabled": h.config.Events.Enabled,
			"brokers": h.config.Events.Brokers,
			"topic":   h.config.Events.Topic,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.sessions.GetActiveSessionCount(),
		},
	}

	if h.udpServer != nil {
		stats["udp"] = h.udpServer.GetStatistics()
	}

	if h.assessment != nil {
		stats["assessment"] = h.assessment.GetStats()
	}

	if h.detector != nil {
		stats["voice_activity"] = h.detector.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "Dubbing Merge Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                                    "API documentation",
			"POST /sessions":                           "Open a recording session for a lesson",
			"GET /sessions":                            "List open sessions",
			"GET /sessions/{id}":                       "Get session details",
			"DELETE /sessions/{id}":                    "Close a session",
			"PUT /sessions/{id}/recordings/{sentence}": "Upload a sentence recording (audio/* body)",
			"GET /sessions/{id}/assessments":           "Get pronunciation assessments",
			"POST /sessions/{id}/merge":                "Merge recordings into one WAV",
			"GET /shares/{hash}":                       "Download a stored merged recording",
			"GET /lessons/{lesson}/shares":             "List stored recordings of a lesson",
			"GET /health":                              "Service health check",
			"GET /config":                              "Get service configuration",
			"GET /stats":                               "Get service statistics",
			"GET /metrics":                             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

// writeError maps domain errors to HTTP status codes
func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrUnknownSentence),
		errors.Is(err, store.ErrShareNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrInvalidRecording),
		errors.Is(err, timeline.ErrNoSentences),
		errors.Is(err, timeline.ErrInvalidSentence):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrIncomplete):
		status = http.StatusConflict
	case errors.Is(err, audio.ErrNoValidAudio):
		status = http.StatusUnprocessableEntity
	}

	if status >= 500 {
		h.logger.Error("Request failed", slog.String("error", err.Error()))
	}

	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
