package invoker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawgenie/hscompass/internal/model"
	"github.com/lawgenie/hscompass/internal/registry"
	"github.com/lawgenie/hscompass/internal/resilience"
	"github.com/lawgenie/hscompass/internal/store"
)

func newTestEnv(t *testing.T) (*registry.Sources, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return registry.NewSources(st), st
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func registerSource(t *testing.T, sources *registry.Sources, src model.Source) model.Source {
	t.Helper()
	src.Active = true
	require.NoError(t, sources.Register(context.Background(), src))
	return src
}

func TestInvoke_SuccessUpdatesReliability(t *testing.T) {
	sources, st := newTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"1"}]}`)) //nolint:errcheck
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{Name: "src", URL: server.URL})
	inv := New(sources, st, WithRetryConfig(fastRetry()))

	res := inv.Invoke(context.Background(), src, "3304.99.50.00", "Premium Vitamin C Serum")
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	require.NotNil(t, res.Source)
	assert.InDelta(t, 0.1, res.Source.SuccessRate, 1e-9)
	assert.False(t, res.UsedFallback)
}

func TestInvoke_RetriesUpstreamOutage(t *testing.T) {
	sources, st := newTestEnv(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"results":[{"id":"1"}]}`)) //nolint:errcheck
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{Name: "src", URL: server.URL})
	inv := New(sources, st, WithRetryConfig(fastRetry()))

	res := inv.Invoke(context.Background(), src, "3304.99.50.00", "serum")
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvoke_DefinitiveErrorNoRetry(t *testing.T) {
	sources, st := newTestEnv(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{Name: "src", URL: server.URL})
	inv := New(sources, st, WithRetryConfig(fastRetry()))

	res := inv.Invoke(context.Background(), src, "3304.99.50.00", "serum")
	assert.Equal(t, model.OutcomeFailure, res.Outcome)
	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, res.Source)
	assert.Equal(t, 1, res.Source.FailureCount)
	assert.Equal(t, 0.0, res.Source.SuccessRate)
}

func TestInvoke_NotFoundWithFallback(t *testing.T) {
	sources, st := newTestEnv(t)

	fallbackServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"name":"ascorbic acid"}]}`)) //nolint:errcheck
	}))
	defer fallbackServer.Close()
	primaryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primaryServer.Close()

	registerSource(t, sources, model.Source{Name: "srs", URL: fallbackServer.URL})
	primary := registerSource(t, sources, model.Source{
		Name: "comptox", URL: primaryServer.URL, Fallback: "srs",
	})
	inv := New(sources, st, WithRetryConfig(fastRetry()))

	res := inv.Invoke(context.Background(), primary, "3304.99.50.00", "vitamin c serum")
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "srs", res.FallbackName)

	// Fallback success is credited to the primary's row.
	require.NotNil(t, res.Source)
	assert.Equal(t, "comptox", res.Source.Name)
	assert.InDelta(t, 0.1, res.Source.SuccessRate, 1e-9)
}

func TestInvoke_RetryLoopSurvivesCallerCancel(t *testing.T) {
	sources, st := newTestEnv(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{Name: "src", URL: server.URL})
	inv := New(sources, st, WithRetryConfig(fastRetry()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := inv.Invoke(ctx, src, "3304.99.50.00", "serum")
	assert.Equal(t, model.OutcomeFailure, res.Outcome)
	assert.Equal(t, int32(3), calls.Load())

	// The abandoned result is still recorded against the source.
	require.NotNil(t, res.Source)
	assert.Equal(t, 1, res.Source.FailureCount)
}

func TestInvoke_FallbackNoDataCreditedToPrimary(t *testing.T) {
	sources, st := newTestEnv(t)

	fallbackServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`)) //nolint:errcheck
	}))
	defer fallbackServer.Close()
	primaryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primaryServer.Close()

	registerSource(t, sources, model.Source{Name: "srs", URL: fallbackServer.URL})
	primary := registerSource(t, sources, model.Source{
		Name: "comptox", URL: primaryServer.URL, Fallback: "srs",
	})
	for i := 0; i < 2; i++ {
		_, err := sources.RecordOutcome(context.Background(), "comptox", model.OutcomeSuccess)
		require.NoError(t, err)
	}

	inv := New(sources, st, WithRetryConfig(fastRetry()))
	res := inv.Invoke(context.Background(), primary, "3304.99.50.00", "vitamin c serum")

	// The fallback's empty result set, not the primary's 404, decides
	// the recorded outcome.
	assert.Equal(t, model.OutcomeNoData, res.Outcome)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "srs", res.FallbackName)
	require.NotNil(t, res.Source)
	assert.Equal(t, "comptox", res.Source.Name)
	assert.InDelta(t, 0.15, res.Source.SuccessRate, 1e-9)
	assert.Equal(t, 1, res.Source.FailureCount)
}

func TestInvoke_NotFoundWithoutFallbackIsNoData(t *testing.T) {
	sources, st := newTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{Name: "src", URL: server.URL})
	for i := 0; i < 5; i++ {
		_, err := sources.RecordOutcome(context.Background(), "src", model.OutcomeSuccess)
		require.NoError(t, err)
	}

	inv := New(sources, st, WithRetryConfig(fastRetry()))
	res := inv.Invoke(context.Background(), src, "3304.99.50.00", "serum")
	assert.Equal(t, model.OutcomeNoData, res.Outcome)
	require.NotNil(t, res.Source)
	assert.InDelta(t, 0.45, res.Source.SuccessRate, 1e-9)
	assert.Equal(t, 1, res.Source.FailureCount)
}

func TestInvoke_EmptyResultSetIsNoData(t *testing.T) {
	sources, st := newTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`)) //nolint:errcheck
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{Name: "src", URL: server.URL})
	inv := New(sources, st, WithRetryConfig(fastRetry()))

	res := inv.Invoke(context.Background(), src, "3304.99.50.00", "serum")
	assert.Equal(t, model.OutcomeNoData, res.Outcome)
}

func TestInvoke_ShapesChemicalSearch(t *testing.T) {
	sources, st := newTestEnv(t)

	var gotSearch string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSearch = r.URL.Query().Get("search")
		w.Write([]byte(`{"results":[{"id":"1"}]}`)) //nolint:errcheck
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{
		Name: "epa_comptox_chemicals", URL: server.URL,
		Params: map[string]string{"limit": "10"},
	})
	inv := New(sources, st, WithRetryConfig(fastRetry()))

	res := inv.Invoke(context.Background(), src, "3304.99.50.00", "Premium Vitamin C Serum")
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "50-81-7", gotSearch)
}

func TestInvoke_InjectsCredential(t *testing.T) {
	sources, st := newTestEnv(t)

	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		w.Write([]byte(`{"results":[{"id":"1"}]}`)) //nolint:errcheck
	}))
	defer server.Close()

	src := registerSource(t, sources, model.Source{
		Name: "usda_endpoint", Agency: "USDA", URL: server.URL, RequiresKey: true,
	})
	inv := New(sources, st,
		WithRetryConfig(fastRetry()),
		WithAPIKey("USDA", "secret-key"),
	)

	res := inv.Invoke(context.Background(), src, "2106.90.99", "protein powder")
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "secret-key", gotKey)
}

func TestSearchTerm(t *testing.T) {
	cases := []struct {
		product string
		want    string
	}{
		{"Premium Vitamin C Serum", "ascorbic acid"},
		{"비타민 C 세럼", "ascorbic acid"},
		{"Ascorbic Acid 20%", "ascorbic acid"},
		{"수분 세럼", "serum"},
		{"Plain Moisturizer", "Plain Moisturizer"},
		{"크림", "chemical"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SearchTerm(tc.product), "product %q", tc.product)
	}
}

func TestCASNumber(t *testing.T) {
	assert.Equal(t, "50-81-7", CASNumber("vitamin c serum"))
	assert.Equal(t, "", CASNumber("face cream"))
}

func TestParseRateLimit(t *testing.T) {
	l := parseRateLimit("3600/hour")
	assert.InDelta(t, 1.0, float64(l.Limit()), 1e-9)

	l = parseRateLimit("1000/day")
	assert.Greater(t, float64(l.Limit()), 0.0)

	// Unparseable hints must never block calls.
	l = parseRateLimit("")
	assert.True(t, l.Allow())
	l = parseRateLimit("whenever")
	assert.True(t, l.Allow())
}
