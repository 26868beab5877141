// Package store provides durable persistence for the source catalog,
// the agency catalog, and the taxonomy-agency mapping table.
package store

import (
	"context"
	"time"

	"github.com/lawgenie/hscompass/internal/model"
)

// Store defines the persistence interface shared by the SQLite and
// Postgres backends. All reads are safe for concurrent use; outcome
// updates are row-level read-modify-writes with last-write-wins
// semantics.
type Store interface {
	// Sources
	CountSources(ctx context.Context) (int, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	GetSource(ctx context.Context, name string) (*model.Source, error)
	UpsertSource(ctx context.Context, src model.Source) error
	SetSourceActive(ctx context.Context, name string, active bool) error

	// RecordSourceOutcome applies the fixed-step success-rate
	// adjustment for the outcome, stamps the matching timestamp,
	// bumps the failure counter for non-success outcomes, and
	// returns the updated row.
	RecordSourceOutcome(ctx context.Context, name string, outcome model.Outcome, at time.Time) (*model.Source, error)

	// LogSourceCall appends one row to the invocation audit log.
	LogSourceCall(ctx context.Context, call model.SourceCall) error

	// Agencies
	ListAgencies(ctx context.Context) ([]model.Agency, error)
	UpsertAgency(ctx context.Context, agency model.Agency) error
	SetAgencyPriority(ctx context.Context, agencyID string, priority int) error
	ReplaceAgencyMappings(ctx context.Context, agencyID string, prefixes []string, priority int) error

	// AgenciesForPrefix joins active agencies to mapping rows whose
	// prefix equals the given chapter or the wildcard, ordered by
	// mapping priority descending then agency priority descending.
	AgenciesForPrefix(ctx context.Context, prefix string) ([]model.RankedAgency, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
