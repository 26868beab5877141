package registry

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/model"
	"github.com/lawgenie/hscompass/internal/store"
)

// Agencies is the chapter-to-agency index.
type Agencies struct {
	store store.Store
}

// NewAgencies creates an agency index backed by the given store.
func NewAgencies(st store.Store) *Agencies {
	return &Agencies{store: st}
}

// Bootstrap seeds the default agency catalog and its chapter mappings
// if the store has none.
func (a *Agencies) Bootstrap(ctx context.Context) error {
	existing, err := a.store.ListAgencies(ctx)
	if err != nil {
		return eris.Wrap(err, "registry: list agencies")
	}
	if len(existing) > 0 {
		return nil
	}
	for _, agency := range defaultAgencies() {
		if err := a.Upsert(ctx, agency); err != nil {
			return err
		}
	}
	zap.L().Info("registry: seeded default agencies", zap.Int("count", len(defaultAgencies())))
	return nil
}

// For returns up to limit agencies responsible for the HS code's
// chapter, highest mapping priority first. Wildcard-mapped agencies
// match every chapter. Duplicates keep the best-ranked row.
func (a *Agencies) For(ctx context.Context, code string, limit int) ([]model.RankedAgency, error) {
	chapter := model.Chapter(code)
	if chapter == "" {
		return nil, eris.Errorf("registry: code too short for chapter lookup: %q", code)
	}

	ranked, err := a.store.AgenciesForPrefix(ctx, chapter)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ranked))
	var out []model.RankedAgency
	for _, r := range ranked {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All lists every registered agency.
func (a *Agencies) All(ctx context.Context) ([]model.Agency, error) {
	return a.store.ListAgencies(ctx)
}

// Upsert writes the agency and rewrites its chapter mappings from its
// prefix list at the agency's own priority.
func (a *Agencies) Upsert(ctx context.Context, agency model.Agency) error {
	if agency.ID == "" || agency.Name == "" {
		return eris.New("registry: agency requires id and name")
	}
	if err := a.store.UpsertAgency(ctx, agency); err != nil {
		return err
	}
	return a.store.ReplaceAgencyMappings(ctx, agency.ID, agency.Prefixes, agency.Priority)
}

// SetPriority adjusts an agency's rank and propagates it to the
// agency's chapter mappings.
func (a *Agencies) SetPriority(ctx context.Context, agencyID string, priority int) error {
	if err := a.store.SetAgencyPriority(ctx, agencyID, priority); err != nil {
		return err
	}
	agencies, err := a.store.ListAgencies(ctx)
	if err != nil {
		return err
	}
	for _, agency := range agencies {
		if agency.ID == agencyID {
			return a.store.ReplaceAgencyMappings(ctx, agencyID, agency.Prefixes, priority)
		}
	}
	return eris.Errorf("registry: agency not found after update: %s", agencyID)
}
