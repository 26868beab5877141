// Package invoker executes calls against registered government data
// sources, with retry on upstream outages, per-source rate limiting
// and circuit breaking, automatic fallback chaining, and reliability
// bookkeeping after every call.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/model"
	"github.com/lawgenie/hscompass/internal/registry"
	"github.com/lawgenie/hscompass/internal/resilience"
	"github.com/lawgenie/hscompass/internal/store"
)

// Result reports the outcome of one source invocation, fallback
// included.
type Result struct {
	Outcome      model.Outcome
	Status       int
	Latency      time.Duration
	UsedFallback bool
	FallbackName string
	Err          string

	// Source is the primary source's post-bookkeeping state.
	Source *model.Source
}

// Invoker calls government data sources.
type Invoker struct {
	sources  *registry.Sources
	store    store.Store
	client   *http.Client
	keys     map[string]string
	retry    resilience.RetryConfig
	breakers *resilience.ServiceBreakers
	limiters *limiterTable
	timeout  time.Duration
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(inv *Invoker) { inv.client = hc }
}

// WithAPIKey registers a credential for a source name or agency.
func WithAPIKey(owner, key string) Option {
	return func(inv *Invoker) { inv.keys[owner] = key }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(inv *Invoker) { inv.retry = cfg }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(inv *Invoker) { inv.timeout = d }
}

// WithBreakerConfig overrides the per-source circuit breaker policy.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(inv *Invoker) { inv.breakers = resilience.NewServiceBreakers(cfg) }
}

// New creates an Invoker. The default retry policy makes three
// attempts with 1s/2s backoff, retrying only on temporarily
// unavailable upstreams.
func New(sources *registry.Sources, st store.Store, opts ...Option) *Invoker {
	inv := &Invoker{
		sources: sources,
		store:   st,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		keys: make(map[string]string),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			Multiplier:     2.0,
			JitterFraction: 0,
		},
		breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		limiters: newLimiterTable(),
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke calls a source for the given HS code and product. On a 404
// from a source with a configured fallback, the fallback is tried once
// and its outcome is credited to the primary source. A started retry
// loop runs to completion and is always recorded, even when the caller
// has stopped waiting; each attempt is still bounded by the per-attempt
// timeout.
func (inv *Invoker) Invoke(ctx context.Context, src model.Source, code, product string) *Result {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	res := inv.attempt(ctx, src, product)

	if res.Status == http.StatusNotFound && src.Fallback != "" {
		fb, err := inv.sources.Get(ctx, src.Fallback)
		if err != nil {
			zap.L().Warn("invoker: fallback source missing",
				zap.String("source", src.Name),
				zap.String("fallback", src.Fallback),
			)
		} else {
			res = inv.attempt(ctx, *fb, product)
			res.UsedFallback = true
			res.FallbackName = fb.Name
		}
	}

	res.Latency = time.Since(start)
	inv.record(ctx, src.Name, code, res)
	return res
}

// attempt makes one shaped, rate-limited, breaker-guarded, retried
// call against a source and classifies the result.
func (inv *Invoker) attempt(ctx context.Context, src model.Source, product string) *Result {
	req := shapeRequest(src, product)
	if src.RequiresKey {
		key := inv.keys[src.Name]
		if key == "" {
			key = inv.keys[src.Agency]
		}
		injectCredential(src, &req, key)
	}

	if err := inv.limiters.get(src.Name, src.RateLimit).Wait(ctx); err != nil {
		return &Result{Outcome: model.OutcomeFailure, Err: err.Error()}
	}

	var status int
	var body []byte
	err := inv.breakers.Get(src.Name).Execute(ctx, func(ctx context.Context) error {
		var callErr error
		status, body, callErr = inv.retryDo(ctx, req)
		return callErr
	})
	if err != nil {
		if status == http.StatusNotFound {
			// No fallback configured means the agency simply has no
			// record of this product.
			if src.Fallback == "" {
				return &Result{Outcome: model.OutcomeNoData, Status: status, Err: "no data (404)"}
			}
			return &Result{Outcome: model.OutcomeFailure, Status: status, Err: err.Error()}
		}
		return &Result{Outcome: model.OutcomeFailure, Status: status, Err: err.Error()}
	}

	if emptyPayload(body) {
		return &Result{Outcome: model.OutcomeNoData, Status: status, Err: "empty result set"}
	}
	return &Result{Outcome: model.OutcomeSuccess, Status: status}
}

// retryDo performs the HTTP exchange with the configured retry policy.
// Only temporarily unavailable upstreams (502/503/504) and transport
// errors are retried.
func (inv *Invoker) retryDo(ctx context.Context, req request) (int, []byte, error) {
	var status int
	var body []byte

	cfg := inv.retry
	cfg.OnRetry = resilience.RetryLogger(req.URL, "invoke")

	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, inv.timeout)
		defer cancel()

		httpReq, err := buildHTTPRequest(attemptCtx, req)
		if err != nil {
			return err
		}
		resp, err := inv.client.Do(httpReq)
		if err != nil {
			return resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return eris.Wrap(err, "invoker: read response body")
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resilience.IsUpstreamUnavailable(resp.StatusCode) {
			return resilience.NewTransientError(
				eris.Errorf("invoker: upstream unavailable: status %d", resp.StatusCode),
				resp.StatusCode,
			)
		}
		return eris.Errorf("invoker: status %d", resp.StatusCode)
	})
	return status, body, err
}

func buildHTTPRequest(ctx context.Context, req request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var httpReq *http.Request
	var err error
	if method == http.MethodGet {
		httpReq, err = http.NewRequestWithContext(ctx, method, req.URL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "invoker: create request")
		}
		if len(req.Params) > 0 {
			q := url.Values{}
			for k, v := range req.Params {
				q.Set(k, v)
			}
			httpReq.URL.RawQuery = q.Encode()
		}
	} else {
		payload, merr := json.Marshal(req.Params)
		if merr != nil {
			return nil, eris.Wrap(merr, "invoker: marshal params")
		}
		httpReq, err = http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "invoker: create request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// record updates the source's reliability score and appends to the
// call log. Bookkeeping is detached from the caller's cancellation so
// a timed-out resolution still counts against the source.
func (inv *Invoker) record(ctx context.Context, name, code string, res *Result) {
	bgCtx := context.WithoutCancel(ctx)

	updated, err := inv.sources.RecordOutcome(bgCtx, name, res.Outcome)
	if err != nil {
		zap.L().Error("invoker: record outcome", zap.String("source", name), zap.Error(err))
	} else {
		res.Source = updated
	}

	if err := inv.store.LogSourceCall(bgCtx, model.SourceCall{
		Source:  name,
		Code:    code,
		Success: res.Outcome == model.OutcomeSuccess,
		Latency: res.Latency,
		Error:   res.Err,
	}); err != nil {
		zap.L().Error("invoker: log call", zap.String("source", name), zap.Error(err))
	}
}

// emptyPayload reports whether a 2xx body carries no usable records.
func emptyPayload(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Non-JSON 2xx bodies (portal HTML) count as data.
		return false
	}
	if envelope.Results != nil && len(envelope.Results) == 0 {
		return true
	}
	return false
}
