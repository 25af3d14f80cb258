package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/tracker"
)

// StatusSource reports provider availability for the status endpoint.
type StatusSource interface {
	Snapshot() []tracker.ProviderStatus
}

// ModelLister enumerates the models the gateway can currently route.
type ModelLister interface {
	ListAvailableModels() []domain.ModelInfo
}

// PricingSyncer runs the feed synchronization and the web search backfill.
type PricingSyncer interface {
	Sync(ctx context.Context) (*domain.SyncResult, error)
	BackfillWebSearchPricing(ctx context.Context) (*domain.SyncResult, error)
}

// Handler handles HTTP requests.
type Handler struct {
	gateway  *domain.GatewayService
	statuses StatusSource
	models   ModelLister
	pricing  domain.PricingRepository
	syncer   PricingSyncer
	adminKey string
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	cfg *config.Config,
	gateway *domain.GatewayService,
	statuses StatusSource,
	models ModelLister,
	pricing domain.PricingRepository,
	syncer PricingSyncer,
) *Handler {
	return &Handler{
		gateway:  gateway,
		statuses: statuses,
		models:   models,
		pricing:  pricing,
		syncer:   syncer,
		adminKey: cfg.Pricing.AdminKey,
	}
}

// completionRequest is the completion endpoint's wire shape: the normalized
// request plus the declared media attachments used for cost apportionment.
type completionRequest struct {
	domain.CompletionRequest
	Media domain.MediaCounts `json:"media,omitempty"`
}

// HandleCompletion streams a completion for the requested model as
// server-sent events. The serving provider is resolved from the model name.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		http.Error(w, "model cannot be empty", http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, req.Model)

	logger := observability.FromContext(ctx)
	logger.Info("completion request received",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("enable_tools", req.EnableTools),
	)

	events, err := h.gateway.StreamCompletion(ctx, &req.CompletionRequest, req.Media)
	if err != nil {
		var notFound *domain.ModelNotFoundError
		if errors.As(err, &notFound) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("completion failed to start", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		if event.Err != nil {
			logger.Error("stream error", zap.Error(event.Err))
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", event.Err.Error())
			flusher.Flush()
			return
		}

		data, err := json.Marshal(event)
		if err != nil {
			logger.Error("failed to encode stream event", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	logger.Info("stream completed")
}

// HandleProviders reports the availability snapshot of every registered
// provider.
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"providers": h.statuses.Snapshot(),
	})
}

// HandleModels lists every model the router can currently serve.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	models := h.models.ListAvailableModels()
	if models == nil {
		models = []domain.ModelInfo{}
	}

	writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"models": models,
	})
}

// HandlePricing dispatches the pricing collection endpoint: POST appends a
// ledger row, GET lists the current row per model.
func (h *Handler) HandlePricing(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.insertPricing(w, r)
	case http.MethodGet:
		h.listPricing(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// pricingRequest is the admin wire shape for one ledger row. EffectiveFrom
// defaults to the time of insertion.
type pricingRequest struct {
	ModelName string `json:"model_name"`
	Provider  string `json:"provider"`

	InputPricePerMillion  *decimal.Decimal `json:"input_price_per_million"`
	OutputPricePerMillion *decimal.Decimal `json:"output_price_per_million"`

	ImageInputPricePerMillion  *decimal.Decimal `json:"image_input_price_per_million"`
	AudioInputPricePerMillion  *decimal.Decimal `json:"audio_input_price_per_million"`
	AudioOutputPricePerMillion *decimal.Decimal `json:"audio_output_price_per_million"`
	VideoInputPricePerMillion  *decimal.Decimal `json:"video_input_price_per_million"`

	WebSearchCallPricePerThousand *decimal.Decimal `json:"web_search_call_price_per_thousand"`

	EffectiveFrom *time.Time `json:"effective_from"`
}

func (p *pricingRequest) toPricing(now time.Time) (*domain.ModelPricing, error) {
	if p.ModelName == "" {
		return nil, errors.New("model_name is required")
	}
	if p.Provider == "" {
		return nil, errors.New("provider is required")
	}
	if p.InputPricePerMillion == nil || p.OutputPricePerMillion == nil {
		return nil, errors.New("input_price_per_million and output_price_per_million are required")
	}

	effectiveFrom := now
	if p.EffectiveFrom != nil {
		effectiveFrom = p.EffectiveFrom.UTC()
	}

	return &domain.ModelPricing{
		ID:                            uuid.NewString(),
		ModelName:                     p.ModelName,
		Provider:                      p.Provider,
		InputPricePerMillion:          *p.InputPricePerMillion,
		OutputPricePerMillion:         *p.OutputPricePerMillion,
		ImageInputPricePerMillion:     p.ImageInputPricePerMillion,
		AudioInputPricePerMillion:     p.AudioInputPricePerMillion,
		AudioOutputPricePerMillion:    p.AudioOutputPricePerMillion,
		VideoInputPricePerMillion:     p.VideoInputPricePerMillion,
		WebSearchCallPricePerThousand: p.WebSearchCallPricePerThousand,
		EffectiveFrom:                 effectiveFrom,
	}, nil
}

func (h *Handler) insertPricing(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(w, r) {
		return
	}
	ctx := r.Context()

	var req pricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	row, err := req.toPricing(time.Now().UTC())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pricing.Insert(ctx, row); err != nil {
		observability.FromContext(ctx).Error("failed to insert pricing", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to insert pricing")
		return
	}

	writeJSON(ctx, w, http.StatusCreated, row)
}

// HandlePricingBulk appends multiple ledger rows in one call.
func (h *Handler) HandlePricingBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorizeAdmin(w, r) {
		return
	}
	ctx := r.Context()

	var reqs []pricingRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(reqs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "at least one pricing entry is required")
		return
	}

	now := time.Now().UTC()
	rows := make([]*domain.ModelPricing, 0, len(reqs))
	for i := range reqs {
		row, err := reqs[i].toPricing(now)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("entry %d: %v", i, err))
			return
		}
		rows = append(rows, row)
	}

	if err := h.pricing.Insert(ctx, rows...); err != nil {
		observability.FromContext(ctx).Error("failed to insert pricing", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to insert pricing")
		return
	}

	writeJSON(ctx, w, http.StatusCreated, map[string]interface{}{
		"inserted": len(rows),
	})
}

func (h *Handler) listPricing(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(w, r) {
		return
	}
	ctx := r.Context()

	rows, err := h.pricing.ListCurrent(ctx, time.Now().UTC())
	if err != nil {
		observability.FromContext(ctx).Error("failed to list pricing", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to list pricing")
		return
	}
	if rows == nil {
		rows = []*domain.ModelPricing{}
	}

	writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"pricing": rows,
	})
}

// HandlePricingHistory returns the full ledger, newest first, optionally
// filtered by the model_name query parameter.
func (h *Handler) HandlePricingHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorizeAdmin(w, r) {
		return
	}
	ctx := r.Context()

	rows, err := h.pricing.History(ctx, r.URL.Query().Get("model_name"))
	if err != nil {
		observability.FromContext(ctx).Error("failed to load pricing history", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to load pricing history")
		return
	}
	if rows == nil {
		rows = []*domain.ModelPricing{}
	}

	writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"history": rows,
	})
}

// HandlePricingSync triggers one synchronization pass against the pricing
// feed, followed by the web search price backfill.
func (h *Handler) HandlePricingSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorizeAdmin(w, r) {
		return
	}
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	result, err := h.syncer.Sync(ctx)
	if err != nil {
		logger.Error("pricing sync failed", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("pricing sync failed: %v", err))
		return
	}

	backfill, err := h.syncer.BackfillWebSearchPricing(ctx)
	if err != nil {
		logger.Error("web search backfill failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("web search backfill failed: %v", err))
		return
	}

	logger.Info("pricing sync completed",
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped", result.Skipped),
		zap.Int("backfilled", len(backfill.Updated)),
	)

	writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"sync":     result.ToMap(),
		"backfill": backfill.ToMap(),
	})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// authorizeAdmin guards the pricing admin surface with the X-Pricing-Api-Key
// header. With no key configured the surface is disabled entirely.
func (h *Handler) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.adminKey == "" {
		writeJSONError(w, http.StatusForbidden, "pricing administration is disabled")
		return false
	}

	key := r.Header.Get("X-Pricing-Api-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
		writeJSONError(w, http.StatusUnauthorized, "invalid pricing api key")
		return false
	}
	return true
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.FromContext(ctx).Error("failed to encode response", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
