package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"agriadvisor/db"
	"agriadvisor/llm"
	"agriadvisor/ml"
	"agriadvisor/monitoring"
)

// Store is the audit side of the database used by the handlers.
type Store interface {
	SavePrediction(record db.PredictionRecord) error
	RecentPredictions(limit int) ([]db.PredictionRecord, error)
	LoadTrainingLog(limit int) ([]db.TrainingLog, error)
}

// Handlers serves the prediction and advisory endpoints from an explicitly
// constructed model registry. Optional collaborators are attached with options.
type Handlers struct {
	registry *ml.ModelRegistry
	advisor  llm.Advisor
	store    Store
	metrics  *monitoring.MetricsCollector
	feed     *monitoring.EventHub
	logger   *zap.Logger

	// routes holds the paths registered on the mux; anything else is "unmatched"
	// in request metrics.
	routes map[string]bool
}

type HandlerOption func(*Handlers)

// WithStore records served predictions and exposes the training log.
func WithStore(store Store) HandlerOption {
	return func(h *Handlers) {
		h.store = store
	}
}

func WithMetrics(metrics *monitoring.MetricsCollector) HandlerOption {
	return func(h *Handlers) {
		h.metrics = metrics
	}
}

// WithEventHub publishes served predictions and mounts the websocket feed.
func WithEventHub(feed *monitoring.EventHub) HandlerOption {
	return func(h *Handlers) {
		h.feed = feed
	}
}

func NewHandlers(registry *ml.ModelRegistry, advisor llm.Advisor, logger *zap.Logger, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		registry: registry,
		advisor:  advisor,
		logger:   logger,
		routes:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handlers) Register(mux *http.ServeMux) {
	h.handle(mux, "POST /predict", h.handlePredict)
	h.handle(mux, "POST /recommend", h.handleRecommend)
	h.handle(mux, "POST /api/recommend-crop", h.handleRecommendCrop)

	h.handle(mux, "GET /api/health", h.handleHealth)
	h.handle(mux, "GET /api/model", h.handleModel)
	h.handle(mux, "GET /api/training-log", h.handleTrainingLog)
	h.handle(mux, "GET /api/predictions", h.handlePredictions)
	h.handle(mux, "GET /api/metrics", h.handleMetrics)
	h.handle(mux, "GET /metrics", h.handlePrometheus)
	if h.feed != nil {
		h.handle(mux, "GET /api/ws/feed", h.feed.HandleWebSocket)
	}
}

func (h *Handlers) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, fn)
	if _, path, ok := strings.Cut(pattern, " "); ok {
		h.routes[path] = true
	} else {
		h.routes[pattern] = true
	}
}

// knownRoute reports whether path is served by a registered pattern.
func (h *Handlers) knownRoute(path string) bool {
	return h.routes[path]
}

type errorResponse struct {
	Error string `json:"error"`
}

type predictResponse struct {
	RecommendedCrop string `json:"recommended_crop"`
}

type recommendRequest struct {
	Query string `json:"query"`
}

type recommendResponse struct {
	Response string `json:"response"`
}

type gatewayResponse struct {
	Success         bool   `json:"success"`
	RecommendedCrop string `json:"recommended_crop,omitempty"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var query ml.CropQuery
	if err := decodeJSON(r, &query); err != nil {
		h.countPrediction("bad_request")
		writeJSON(w, decodeStatus(err), errorResponse{Error: err.Error()})
		return
	}

	rec, err := h.recommend(r, query)
	if err != nil {
		writeJSON(w, statusForKind(ml.KindOf(err)), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{RecommendedCrop: rec.Crop})
}

// handleRecommendCrop answers in the envelope the web front end consumes.
func (h *Handlers) handleRecommendCrop(w http.ResponseWriter, r *http.Request) {
	var query ml.CropQuery
	if err := decodeJSON(r, &query); err != nil {
		h.countPrediction("bad_request")
		writeJSON(w, decodeStatus(err), gatewayResponse{Message: err.Error()})
		return
	}

	rec, err := h.recommend(r, query)
	if err != nil {
		status := statusForKind(ml.KindOf(err))
		if status == http.StatusBadRequest {
			writeJSON(w, status, gatewayResponse{Message: err.Error()})
			return
		}
		writeJSON(w, status, gatewayResponse{Message: "Error connecting to ML model", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, gatewayResponse{Success: true, RecommendedCrop: rec.Crop})
}

func (h *Handlers) recommend(r *http.Request, query ml.CropQuery) (ml.Recommendation, error) {
	requestID := GetRequestID(r.Context())
	query = query.Normalize()

	predictor := h.registry.Current()
	if predictor == nil {
		h.countPrediction("internal")
		return ml.Recommendation{}, &ml.InternalError{Err: errors.New("model not loaded")}
	}

	rec, err := predictor.Recommend(query)
	if err != nil {
		kind := ml.KindOf(err)
		if statusForKind(kind) == http.StatusBadRequest {
			h.countPrediction("bad_request")
			h.logger.Info("prediction rejected",
				zap.String("request_id", requestID),
				zap.String("kind", kind.String()),
				zap.Error(err))
		} else {
			h.countPrediction("internal")
			h.logger.Error("prediction failed", zap.String("request_id", requestID), zap.Error(err))
		}
		return ml.Recommendation{}, err
	}

	h.countPrediction("ok")
	if h.store != nil {
		record := db.PredictionRecord{
			RequestID:       requestID,
			SoilType:        query.SoilType,
			Season:          query.Season,
			Place:           query.Place,
			RecommendedCrop: rec.Crop,
			Confidence:      rec.Confidence,
		}
		if err := h.store.SavePrediction(record); err != nil {
			h.logger.Warn("prediction audit write failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	if h.feed != nil {
		h.feed.Publish(monitoring.EventPrediction, monitoring.PredictionEvent{
			RequestID:       requestID,
			SoilType:        query.SoilType,
			Season:          query.Season,
			Place:           query.Place,
			RecommendedCrop: rec.Crop,
			Confidence:      rec.Confidence,
		})
	}
	return rec, nil
}

// handleRecommend always answers 200; failures are reported in the response text.
func (h *Handlers) handleRecommend(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var req recommendRequest
	if err := decodeJSON(r, &req); err != nil {
		h.countAdvisory("error")
		writeJSON(w, http.StatusOK, recommendResponse{Response: "Error: " + err.Error()})
		return
	}
	if h.advisor == nil {
		h.countAdvisory("error")
		writeJSON(w, http.StatusOK, recommendResponse{Response: "Error: advisor not configured"})
		return
	}

	reply, err := h.advisor.Advise(r.Context(), req.Query)
	if err != nil {
		h.countAdvisory("error")
		h.logger.Warn("advisory request failed", zap.String("request_id", requestID), zap.Error(err))
		writeJSON(w, http.StatusOK, recommendResponse{Response: "Error: " + err.Error()})
		return
	}

	h.countAdvisory("ok")
	writeJSON(w, http.StatusOK, recommendResponse{Response: reply})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model_loaded": h.registry.Current() != nil,
	})
}

// handleModel exposes the bundle metadata and vocabularies, e.g. for form dropdowns.
func (h *Handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	predictor := h.registry.Current()
	if predictor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "model not loaded"})
		return
	}
	bundle := predictor.Bundle()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metadata":     bundle.Metadata,
		"vocabularies": bundle.Vocabularies(),
	})
}

func (h *Handlers) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not configured"})
		return
	}
	limit, err := parseLimit(r, 20)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	logs, err := h.store.LoadTrainingLog(limit)
	if err != nil {
		h.logger.Error("load training log failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not configured"})
		return
	}
	limit, err := parseLimit(r, 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	records, err := h.store.RecentPredictions(limit)
	if err != nil {
		h.logger.Error("load predictions failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "metrics not enabled"})
		return
	}
	response := map[string]interface{}{
		"metrics": h.metrics.Snapshot(),
		"system":  h.metrics.GetSystemStats(),
	}
	if h.feed != nil {
		response["feed_clients"] = h.feed.ClientCount()
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(w, r)
}

func (h *Handlers) countPrediction(outcome string) {
	if h.metrics != nil {
		h.metrics.IncrCounter(monitoring.MetricPredictions, map[string]string{"outcome": outcome})
	}
}

func (h *Handlers) countAdvisory(outcome string) {
	if h.metrics != nil {
		h.metrics.IncrCounter(monitoring.MetricAdvisories, map[string]string{"outcome": outcome})
	}
}

func statusForKind(kind ml.ErrorKind) int {
	switch kind {
	case ml.KindMissingField, ml.KindUnknownCategory:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func decodeStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
