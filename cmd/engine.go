package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/classifier"
	"github.com/lawgenie/hscompass/internal/invoker"
	"github.com/lawgenie/hscompass/internal/orchestrator"
	"github.com/lawgenie/hscompass/internal/reasoning"
	"github.com/lawgenie/hscompass/internal/registry"
	"github.com/lawgenie/hscompass/internal/resilience"
	"github.com/lawgenie/hscompass/internal/store"
	"github.com/lawgenie/hscompass/pkg/anthropic"
)

// engineEnv bundles the wired components shared by the subcommands.
type engineEnv struct {
	Store    store.Store
	Sources  *registry.Sources
	Agencies *registry.Agencies
	Orch     *orchestrator.Orchestrator
}

// initEngine opens the durable store, seeds the catalogs on first use,
// and wires the classifier, invoker, and orchestrator.
func initEngine(ctx context.Context) (*engineEnv, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		st, err = store.NewSQLite(cfg.Store.Path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	sources := registry.NewSources(st)
	agencies := registry.NewAgencies(st)
	if err := sources.Bootstrap(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	if err := agencies.Bootstrap(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	tax, err := classifier.LoadEmbedded()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	cls := classifier.New(tax, classifier.WithTopK(cfg.Classify.TopK))

	retryCfg := resilience.FromRetryConfig(
		cfg.Invoker.MaxAttempts,
		int(cfg.Invoker.InitialBackoffSecs*1000),
		0,
		cfg.Invoker.BackoffMultiplier,
		0,
	)
	invOpts := []invoker.Option{
		invoker.WithRetryConfig(retryCfg),
		invoker.WithTimeout(time.Duration(cfg.Invoker.TimeoutSecs) * time.Second),
		invoker.WithBreakerConfig(resilience.FromCircuitConfig(
			cfg.Invoker.BreakerThreshold,
			cfg.Invoker.BreakerResetSecs,
		)),
	}
	for owner, key := range map[string]string{
		"USDA":     cfg.Keys.USDA,
		"CBP":      cfg.Keys.CBP,
		"Commerce": cfg.Keys.Commerce,
	} {
		if key != "" {
			invOpts = append(invOpts, invoker.WithAPIKey(owner, key))
		}
	}
	inv := invoker.New(sources, st, invOpts...)

	orchOpts := []orchestrator.Option{
		orchestrator.WithMaxAgencies(cfg.Resolve.MaxAgencies),
		orchestrator.WithFanout(cfg.Resolve.Fanout),
	}
	if cfg.Anthropic.Key != "" {
		annotator := reasoning.New(
			anthropic.NewClient(cfg.Anthropic.Key),
			reasoning.WithModel(cfg.Anthropic.Model),
		)
		orchOpts = append(orchOpts, orchestrator.WithAnnotator(annotator))
	} else {
		zap.L().Debug("no anthropic key configured, reasoning uses templated explanations")
	}

	return &engineEnv{
		Store:    st,
		Sources:  sources,
		Agencies: agencies,
		Orch:     orchestrator.New(cls, agencies, sources, inv, orchOpts...),
	}, nil
}

func (env *engineEnv) Close() {
	if err := env.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
