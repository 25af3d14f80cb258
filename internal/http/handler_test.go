package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	gatewayhttp "github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/tracker"
)

const testAdminKey = "test-admin-key"

type scriptedProvider struct {
	name   string
	events []domain.StreamEvent
}

func (p *scriptedProvider) Name() string                           { return p.name }
func (p *scriptedProvider) SupportedModels() []string              { return nil }
func (p *scriptedProvider) FetchModels(_ context.Context) []string { return nil }
func (p *scriptedProvider) HealthCheck(_ context.Context) error    { return nil }
func (p *scriptedProvider) StreamCompletion(_ context.Context, _ *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	out := make(chan domain.StreamEvent, len(p.events))
	for _, e := range p.events {
		out <- e
	}
	close(out)
	return out, nil
}

type staticResolver struct {
	provider domain.Provider
}

func (r *staticResolver) GetProvider(model string) (domain.Provider, error) {
	if r.provider == nil {
		return nil, &domain.ModelNotFoundError{Model: model}
	}
	return r.provider, nil
}

type noopRecorder struct{}

func (noopRecorder) RecordSuccess(_ string)           {}
func (noopRecorder) RecordFailure(_ string, _ string) {}

type stubStatuses struct {
	statuses []tracker.ProviderStatus
}

func (s *stubStatuses) Snapshot() []tracker.ProviderStatus { return s.statuses }

type stubModels struct {
	models []domain.ModelInfo
}

func (s *stubModels) ListAvailableModels() []domain.ModelInfo { return s.models }

type stubPricingRepo struct {
	rows     []*domain.ModelPricing
	inserted []*domain.ModelPricing
}

func (r *stubPricingRepo) Insert(_ context.Context, rows ...*domain.ModelPricing) error {
	r.inserted = append(r.inserted, rows...)
	return nil
}

func (r *stubPricingRepo) CurrentPrice(_ context.Context, modelName string, _ time.Time) (*domain.ModelPricing, error) {
	for _, row := range r.rows {
		if row.ModelName == modelName {
			return row, nil
		}
	}
	return nil, domain.ErrNoPrice
}

func (r *stubPricingRepo) LatestPerModel(_ context.Context, _ time.Time) (map[string]*domain.ModelPricing, error) {
	out := make(map[string]*domain.ModelPricing, len(r.rows))
	for _, row := range r.rows {
		out[row.ModelName] = row
	}
	return out, nil
}

func (r *stubPricingRepo) ListCurrent(_ context.Context, _ time.Time) ([]*domain.ModelPricing, error) {
	return r.rows, nil
}

func (r *stubPricingRepo) History(_ context.Context, modelName string) ([]*domain.ModelPricing, error) {
	if modelName == "" {
		return r.rows, nil
	}
	var out []*domain.ModelPricing
	for _, row := range r.rows {
		if row.ModelName == modelName {
			out = append(out, row)
		}
	}
	return out, nil
}

type stubSyncer struct {
	syncCalls     int
	backfillCalls int
	syncErr       error
}

func (s *stubSyncer) Sync(_ context.Context) (*domain.SyncResult, error) {
	s.syncCalls++
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return &domain.SyncResult{Updated: []string{"gpt-4o"}, Unchanged: 2}, nil
}

func (s *stubSyncer) BackfillWebSearchPricing(_ context.Context) (*domain.SyncResult, error) {
	s.backfillCalls++
	return &domain.SyncResult{}, nil
}

type handlerFixture struct {
	handler  *gatewayhttp.Handler
	repo     *stubPricingRepo
	syncer   *stubSyncer
	resolver *staticResolver
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()

	repo := &stubPricingRepo{}
	syncer := &stubSyncer{}
	resolver := &staticResolver{}
	gateway := domain.NewGatewayService(resolver, noopRecorder{}, domain.NewCostEngine(repo))

	cfg := &config.Config{}
	cfg.Pricing.AdminKey = testAdminKey

	handler := gatewayhttp.NewHandler(
		cfg,
		gateway,
		&stubStatuses{statuses: []tracker.ProviderStatus{
			{Name: "echo", Available: true, Models: []string{"echo4"}},
		}},
		&stubModels{models: []domain.ModelInfo{
			{Model: "echo4", Provider: "echo"},
		}},
		repo,
		syncer,
	)

	return &handlerFixture{handler: handler, repo: repo, syncer: syncer, resolver: resolver}
}

func TestHandleCompletion_StreamsEvents(t *testing.T) {
	fx := newFixture(t)
	fx.resolver.provider = &scriptedProvider{
		name: "echo",
		events: []domain.StreamEvent{
			{Text: "hello "},
			{Text: "world"},
			{Usage: &domain.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}},
		},
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":    "echo4",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	fx.handler.HandleCompletion(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var texts []string
	var usage *domain.Usage
	sawDone := false

	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}

		var event struct {
			Text  string        `json:"text"`
			Usage *domain.Usage `json:"usage"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &event))
		if event.Text != "" {
			texts = append(texts, event.Text)
		}
		if event.Usage != nil {
			usage = event.Usage
		}
	}

	require.Equal(t, []string{"hello ", "world"}, texts)
	require.NotNil(t, usage)
	require.Equal(t, 5, usage.TotalTokens)
	require.True(t, sawDone)
}

func TestHandleCompletion_UnknownModelReturns404(t *testing.T) {
	fx := newFixture(t)

	body := `{"model":"no-such-model","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	fx.handler.HandleCompletion(rec, req)

	require.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestHandleCompletion_RejectsMissingModel(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/completions", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()

	fx.handler.HandleCompletion(rec, req)

	require.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestHandleProviders_ReturnsSnapshot(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/v1/llm/providers", nil)
	rec := httptest.NewRecorder()

	fx.handler.HandleProviders(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)

	var response struct {
		Providers []tracker.ProviderStatus `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Providers, 1)
	require.Equal(t, "echo", response.Providers[0].Name)
	require.True(t, response.Providers[0].Available)
}

func TestHandleModels_ReturnsRoutableModels(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/v1/llm/models", nil)
	rec := httptest.NewRecorder()

	fx.handler.HandleModels(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)

	var response struct {
		Models []domain.ModelInfo `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Equal(t, []domain.ModelInfo{{Model: "echo4", Provider: "echo"}}, response.Models)
}

func TestHandlePricing_InsertRequiresAdminKey(t *testing.T) {
	fx := newFixture(t)

	body := `{"model_name":"gpt-4o","provider":"openai","input_price_per_million":"2.5","output_price_per_million":"10"}`

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/pricing", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.handler.HandlePricing(rec, req)
	require.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	require.Empty(t, fx.repo.inserted)

	req = httptest.NewRequest(nethttp.MethodPost, "/v1/pricing", strings.NewReader(body))
	req.Header.Set("X-Pricing-Api-Key", "wrong")
	rec = httptest.NewRecorder()
	fx.handler.HandlePricing(rec, req)
	require.Equal(t, nethttp.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(nethttp.MethodPost, "/v1/pricing", strings.NewReader(body))
	req.Header.Set("X-Pricing-Api-Key", testAdminKey)
	rec = httptest.NewRecorder()
	fx.handler.HandlePricing(rec, req)
	require.Equal(t, nethttp.StatusCreated, rec.Code)

	require.Len(t, fx.repo.inserted, 1)
	row := fx.repo.inserted[0]
	require.Equal(t, "gpt-4o", row.ModelName)
	require.Equal(t, "openai", row.Provider)
	require.True(t, row.InputPricePerMillion.Equal(decimal.RequireFromString("2.5")))
	require.True(t, row.OutputPricePerMillion.Equal(decimal.RequireFromString("10")))
	require.NotEmpty(t, row.ID)
	require.False(t, row.EffectiveFrom.IsZero())
}

func TestHandlePricing_AdminSurfaceDisabledWithoutKey(t *testing.T) {
	repo := &stubPricingRepo{}
	cfg := &config.Config{}
	handler := gatewayhttp.NewHandler(cfg, nil, &stubStatuses{}, &stubModels{}, repo, &stubSyncer{})

	body := `{"model_name":"gpt-4o","provider":"openai","input_price_per_million":"2.5","output_price_per_million":"10"}`
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/pricing", strings.NewReader(body))
	req.Header.Set("X-Pricing-Api-Key", "anything")
	rec := httptest.NewRecorder()

	handler.HandlePricing(rec, req)

	require.Equal(t, nethttp.StatusForbidden, rec.Code)
	require.Empty(t, repo.inserted)
}

func TestHandlePricing_InsertRejectsIncompleteRow(t *testing.T) {
	fx := newFixture(t)

	body := `{"model_name":"gpt-4o","provider":"openai"}`
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/pricing", strings.NewReader(body))
	req.Header.Set("X-Pricing-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()

	fx.handler.HandlePricing(rec, req)

	require.Equal(t, nethttp.StatusBadRequest, rec.Code)
	require.Empty(t, fx.repo.inserted)
}

func TestHandlePricingBulk_InsertsAllRows(t *testing.T) {
	fx := newFixture(t)

	body := `[
		{"model_name":"gpt-4o","provider":"openai","input_price_per_million":"2.5","output_price_per_million":"10"},
		{"model_name":"grok-3","provider":"xai","input_price_per_million":"3","output_price_per_million":"15","web_search_call_price_per_thousand":"5"}
	]`
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/pricing/bulk", strings.NewReader(body))
	req.Header.Set("X-Pricing-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()

	fx.handler.HandlePricingBulk(rec, req)

	require.Equal(t, nethttp.StatusCreated, rec.Code)
	require.Len(t, fx.repo.inserted, 2)
	require.NotNil(t, fx.repo.inserted[1].WebSearchCallPricePerThousand)
	require.True(t, fx.repo.inserted[1].WebSearchCallPricePerThousand.Equal(decimal.RequireFromString("5")))
}

func TestHandlePricingHistory_FiltersByModel(t *testing.T) {
	fx := newFixture(t)
	fx.repo.rows = []*domain.ModelPricing{
		{ModelName: "gpt-4o", Provider: "openai"},
		{ModelName: "grok-3", Provider: "xai"},
	}

	req := httptest.NewRequest(nethttp.MethodGet, "/v1/pricing/history?model_name=grok-3", nil)
	req.Header.Set("X-Pricing-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()

	fx.handler.HandlePricingHistory(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)

	var response struct {
		History []*domain.ModelPricing `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.History, 1)
	require.Equal(t, "grok-3", response.History[0].ModelName)
}

func TestHandlePricingSync_RunsSyncAndBackfill(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/pricing/sync", nil)
	req.Header.Set("X-Pricing-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()

	fx.handler.HandlePricingSync(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.Equal(t, 1, fx.syncer.syncCalls)
	require.Equal(t, 1, fx.syncer.backfillCalls)

	var response map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Contains(t, response, "sync")
	require.Contains(t, response, "backfill")
}

func TestHandlePricingSync_FeedFailureIsBadGateway(t *testing.T) {
	fx := newFixture(t)
	fx.syncer.syncErr = errors.New("feed unreachable")

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/pricing/sync", nil)
	req.Header.Set("X-Pricing-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()

	fx.handler.HandlePricingSync(rec, req)

	require.Equal(t, nethttp.StatusBadGateway, rec.Code)
	require.Zero(t, fx.syncer.backfillCalls)
}

func TestHandleHealth(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	fx.handler.HandleHealth(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHandleModels_RejectsPost(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/llm/models", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	fx.handler.HandleModels(rec, req)

	require.Equal(t, nethttp.StatusMethodNotAllowed, rec.Code)
}

