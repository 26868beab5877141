// Package registry maintains the catalogs the resolution engine draws
// from: government data sources with learned reliability scores, and
// the chapter-to-agency index.
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/model"
	"github.com/lawgenie/hscompass/internal/store"
)

// Sources manages the source catalog and its per-source reliability
// scores.
type Sources struct {
	store store.Store
}

// NewSources creates a source registry backed by the given store.
func NewSources(st store.Store) *Sources {
	return &Sources{store: st}
}

// Bootstrap seeds the default source catalog if the store is empty.
// Re-running against a populated store is a no-op so learned success
// rates survive restarts.
func (s *Sources) Bootstrap(ctx context.Context) error {
	n, err := s.store.CountSources(ctx)
	if err != nil {
		return eris.Wrap(err, "registry: count sources")
	}
	if n > 0 {
		return nil
	}
	for _, src := range defaultSources() {
		if err := s.store.UpsertSource(ctx, src); err != nil {
			return eris.Wrapf(err, "registry: seed source %s", src.Name)
		}
	}
	zap.L().Info("registry: seeded default sources", zap.Int("count", len(defaultSources())))
	return nil
}

// For returns the active sources applicable to the given HS code,
// most reliable first. Ties keep catalog insertion order.
func (s *Sources) For(ctx context.Context, code string) ([]model.Source, error) {
	all, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "registry: list sources")
	}

	var matched []model.Source
	for _, src := range all {
		if src.Active && src.AppliesTo(code) {
			matched = append(matched, src)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].SuccessRate > matched[j].SuccessRate
	})
	return matched, nil
}

// Get returns a single source by name.
func (s *Sources) Get(ctx context.Context, name string) (*model.Source, error) {
	return s.store.GetSource(ctx, name)
}

// Register adds or updates a source definition. Learned state on an
// existing row is preserved.
func (s *Sources) Register(ctx context.Context, src model.Source) error {
	if src.Name == "" || src.URL == "" {
		return eris.New("registry: source requires name and url")
	}
	if src.Method == "" {
		src.Method = "GET"
	}
	return s.store.UpsertSource(ctx, src)
}

// Deactivate removes a source from selection without deleting its
// history.
func (s *Sources) Deactivate(ctx context.Context, name string) error {
	return s.store.SetSourceActive(ctx, name, false)
}

// RecordOutcome applies the outcome's rate adjustment and returns the
// updated source.
func (s *Sources) RecordOutcome(ctx context.Context, name string, outcome model.Outcome) (*model.Source, error) {
	src, err := s.store.RecordSourceOutcome(ctx, name, outcome, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	zap.L().Debug("registry: recorded source outcome",
		zap.String("source", name),
		zap.String("outcome", string(outcome)),
		zap.Float64("success_rate", src.SuccessRate),
	)
	return src, nil
}
