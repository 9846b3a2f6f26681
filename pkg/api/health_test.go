package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/cuemby/cirrus/pkg/optimizer"
	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/scheduler"
	"github.com/cuemby/cirrus/pkg/types"
)

type fixedCycle struct {
	result *scheduler.CycleResult
}

func (f fixedCycle) LastCycle() *scheduler.CycleResult { return f.result }

func testTable() *pricing.Cache {
	c := pricing.NewCache()
	c.Swap(pricing.NewTable([]types.MachineType{
		{Provider: types.ProviderGCP, Name: "e2-standard-2", CPU: 2, RAM: 8, Price: 0.067},
		{Provider: types.ProviderGCP, Name: "e2-standard-4", CPU: 4, RAM: 16, Price: 0.134},
		{Provider: types.ProviderAWS, Name: "m5.large", CPU: 2, RAM: 8, Price: 0.096},
	}))
	return c
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMethodNotAllowed(t *testing.T) {
	hs := NewHTTPServer(nil, nil, zerolog.Nop())

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"POST health", http.MethodPost, "/health"},
		{"PUT ready", http.MethodPut, "/ready"},
		{"DELETE plan", http.MethodDelete, "/v1/plan"},
		{"POST pricing", http.MethodPost, "/v1/pricing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, hs.Handler(), tt.method, tt.path)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestReadyFollowsComponents(t *testing.T) {
	hs := NewHTTPServer(nil, nil, zerolog.Nop())

	metrics.UpdateComponent(metrics.ComponentKubernetes, true, "")
	metrics.UpdateComponent(metrics.ComponentPricing, false, "no table yet")
	metrics.UpdateComponent(metrics.ComponentScheduler, true, "")

	rec := serve(t, hs.Handler(), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body metrics.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Contains(t, body.Components[metrics.ComponentPricing], "no table yet")

	metrics.UpdateComponent(metrics.ComponentPricing, true, "")
	rec = serve(t, hs.Handler(), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLiveness(t *testing.T) {
	hs := NewHTTPServer(nil, nil, zerolog.Nop())
	rec := serve(t, hs.Handler(), http.MethodGet, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestMetricsEndpoint(t *testing.T) {
	hs := NewHTTPServer(nil, nil, zerolog.Nop())
	serve(t, hs.Handler(), http.MethodGet, "/livez")

	rec := serve(t, hs.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cirrus_api_requests_total")
	assert.Contains(t, rec.Body.String(), `path="/livez"`)
}

func TestPlanHandler(t *testing.T) {
	t.Run("scheduler not running", func(t *testing.T) {
		hs := NewHTTPServer(nil, nil, zerolog.Nop())
		rec := serve(t, hs.Handler(), http.MethodGet, "/v1/plan")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no cycle yet", func(t *testing.T) {
		hs := NewHTTPServer(fixedCycle{}, nil, zerolog.Nop())
		rec := serve(t, hs.Handler(), http.MethodGet, "/v1/plan")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("last cycle", func(t *testing.T) {
		result := &scheduler.CycleResult{
			ID:         "c0ffee",
			StartedAt:  time.Now().Add(-time.Second),
			FinishedAt: time.Now(),
			Outcome:    scheduler.OutcomeExecuted,
			Pending:    2,
			Summary: &optimizer.Summary{
				NewNodes:      1,
				NewNodesPrice: 0.134,
				TotalPrice:    0.201,
				PlacedPods:    2,
			},
			Provisioned: []string{"cirrus-1"},
			Bound:       []string{"default/a", "default/b"},
		}
		hs := NewHTTPServer(fixedCycle{result: result}, nil, zerolog.Nop())

		rec := serve(t, hs.Handler(), http.MethodGet, "/v1/plan")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got scheduler.CycleResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "c0ffee", got.ID)
		assert.Equal(t, scheduler.OutcomeExecuted, got.Outcome)
		require.NotNil(t, got.Summary)
		assert.Equal(t, 1, got.Summary.NewNodes)
		assert.Equal(t, []string{"cirrus-1"}, got.Provisioned)
	})
}

func TestPricingHandler(t *testing.T) {
	hs := NewHTTPServer(nil, testTable(), zerolog.Nop())

	tests := []struct {
		name      string
		target    string
		wantCount int
	}{
		{"all providers", "/v1/pricing", 3},
		{"filter gcp", "/v1/pricing?provider=gcp", 2},
		{"filter aws", "/v1/pricing?provider=aws", 1},
		{"unknown provider", "/v1/pricing?provider=azure", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, hs.Handler(), http.MethodGet, tt.target)
			require.Equal(t, http.StatusOK, rec.Code)

			var body PricingResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCount, body.Count)
			assert.Len(t, body.MachineTypes, tt.wantCount)
			assert.Equal(t, 2, body.Providers[types.ProviderGCP])
			assert.Equal(t, 1, body.Providers[types.ProviderAWS])
		})
	}
}

func TestPricingHandlerNotConfigured(t *testing.T) {
	hs := NewHTTPServer(nil, nil, zerolog.Nop())
	rec := serve(t, hs.Handler(), http.MethodGet, "/v1/pricing")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
