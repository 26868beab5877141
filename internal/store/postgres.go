package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lawgenie/hscompass/internal/db"
	"github.com/lawgenie/hscompass/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations on the resolution path.
var preparedStatements = map[string]string{
	"get_source": `SELECT name, agency, url, method, params, headers, category, prefixes,
		requires_key, rate_limit, fallback, success_rate, last_success, last_failure,
		failure_count, active FROM sources WHERE name = $1`,
	"log_source_call": `INSERT INTO source_calls (source, code, success, latency_ms, error, called_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
	"agencies_for_prefix": `SELECT a.id, a.name, a.short_name, a.description, a.website,
		a.categories, a.prefixes, a.priority, a.active, a.updated_at, m.priority
		FROM agency_mappings m
		JOIN agencies a ON a.id = m.agency_id
		WHERE (m.prefix = $1 OR m.prefix = $2) AND a.active
		ORDER BY m.priority DESC, a.priority DESC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	name          TEXT PRIMARY KEY,
	seq           BIGINT NOT NULL,
	agency        TEXT NOT NULL,
	url           TEXT NOT NULL,
	method        TEXT NOT NULL DEFAULT 'GET',
	params        JSONB NOT NULL DEFAULT '{}',
	headers       JSONB NOT NULL DEFAULT '{}',
	category      TEXT NOT NULL DEFAULT '',
	prefixes      JSONB NOT NULL DEFAULT '[]',
	requires_key  BOOLEAN NOT NULL DEFAULT false,
	rate_limit    TEXT NOT NULL DEFAULT '',
	fallback      TEXT NOT NULL DEFAULT '',
	success_rate  DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	last_success  TIMESTAMPTZ,
	last_failure  TIMESTAMPTZ,
	failure_count INTEGER NOT NULL DEFAULT 0,
	active        BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS agencies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	short_name  TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	website     TEXT NOT NULL DEFAULT '',
	categories  JSONB NOT NULL DEFAULT '[]',
	prefixes    JSONB NOT NULL DEFAULT '[]',
	priority    INTEGER NOT NULL DEFAULT 0,
	active      BOOLEAN NOT NULL DEFAULT true,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agency_mappings (
	prefix    TEXT NOT NULL,
	agency_id TEXT NOT NULL REFERENCES agencies(id),
	priority  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (prefix, agency_id)
);

CREATE TABLE IF NOT EXISTS source_calls (
	id         BIGSERIAL PRIMARY KEY,
	source     TEXT NOT NULL,
	code       TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	called_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sources_agency ON sources(agency);
CREATE INDEX IF NOT EXISTS idx_agency_mappings_prefix ON agency_mappings(prefix);
CREATE INDEX IF NOT EXISTS idx_source_calls_source ON source_calls(source);
CREATE INDEX IF NOT EXISTS idx_source_calls_called_at ON source_calls(called_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgSourceColumns = `name, agency, url, method, params, headers, category, prefixes,
	requires_key, rate_limit, fallback, success_rate, last_success, last_failure,
	failure_count, active`

func (s *PostgresStore) CountSources(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sources`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count sources")
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSourceColumns+` FROM sources ORDER BY seq ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanPGSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) GetSource(ctx context.Context, name string) (*model.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSourceColumns+` FROM sources WHERE name = $1`, name)
	src, err := scanPGSource(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", name)
	}
	return src, nil
}

func (s *PostgresStore) UpsertSource(ctx context.Context, src model.Source) error {
	params, err := json.Marshal(orEmptyMap(src.Params))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source params")
	}
	headers, err := json.Marshal(orEmptyMap(src.Headers))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source headers")
	}
	prefixes, err := json.Marshal(orEmptySlice(src.Prefixes))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source prefixes")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sources (name, seq, agency, url, method, params, headers, category,
			prefixes, requires_key, rate_limit, fallback, success_rate, failure_count, active)
		VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sources), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (name) DO UPDATE SET
			agency = EXCLUDED.agency, url = EXCLUDED.url, method = EXCLUDED.method,
			params = EXCLUDED.params, headers = EXCLUDED.headers, category = EXCLUDED.category,
			prefixes = EXCLUDED.prefixes, requires_key = EXCLUDED.requires_key,
			rate_limit = EXCLUDED.rate_limit, fallback = EXCLUDED.fallback,
			active = EXCLUDED.active`,
		src.Name, src.Agency, src.URL, src.Method, params, headers, src.Category,
		prefixes, src.RequiresKey, src.RateLimit, src.Fallback,
		src.SuccessRate, src.FailureCount, src.Active,
	)
	return eris.Wrapf(err, "postgres: upsert source %s", src.Name)
}

func (s *PostgresStore) SetSourceActive(ctx context.Context, name string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET active = $1 WHERE name = $2`, active, name)
	if err != nil {
		return eris.Wrapf(err, "postgres: set source active %s", name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %s", name)
	}
	return nil
}

func (s *PostgresStore) RecordSourceOutcome(ctx context.Context, name string, outcome model.Outcome, at time.Time) (*model.Source, error) {
	query := `UPDATE sources SET success_rate = GREATEST(0.0, LEAST(1.0, success_rate + $1))`
	args := []any{outcome.RateDelta()}
	if outcome == model.OutcomeSuccess {
		query += `, last_success = $2 WHERE name = $3`
	} else {
		query += `, last_failure = $2, failure_count = failure_count + 1 WHERE name = $3`
	}
	args = append(args, at.UTC(), name)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record outcome for %s", name)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("source not found: %s", name)
	}
	return s.GetSource(ctx, name)
}

func (s *PostgresStore) LogSourceCall(ctx context.Context, call model.SourceCall) error {
	calledAt := call.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_calls (source, code, success, latency_ms, error, called_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		call.Source, call.Code, call.Success, call.Latency.Milliseconds(),
		call.Error, calledAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: log call for %s", call.Source)
}

func (s *PostgresStore) ListAgencies(ctx context.Context) ([]model.Agency, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, short_name, description, website, categories, prefixes,
			priority, active, updated_at
		FROM agencies ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list agencies")
	}
	defer rows.Close()

	var agencies []model.Agency
	for rows.Next() {
		var a model.Agency
		var categories, prefixes []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.ShortName, &a.Description, &a.Website,
			&categories, &prefixes, &a.Priority, &a.Active, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan agency")
		}
		if err := json.Unmarshal(categories, &a.Categories); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal agency categories")
		}
		if err := json.Unmarshal(prefixes, &a.Prefixes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal agency prefixes")
		}
		agencies = append(agencies, a)
	}
	return agencies, eris.Wrap(rows.Err(), "postgres: list agencies iterate")
}

func (s *PostgresStore) UpsertAgency(ctx context.Context, agency model.Agency) error {
	categories, err := json.Marshal(orEmptySlice(agency.Categories))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal agency categories")
	}
	prefixes, err := json.Marshal(orEmptySlice(agency.Prefixes))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal agency prefixes")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agencies (id, name, short_name, description, website, categories,
			prefixes, priority, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, short_name = EXCLUDED.short_name,
			description = EXCLUDED.description, website = EXCLUDED.website,
			categories = EXCLUDED.categories, prefixes = EXCLUDED.prefixes,
			priority = EXCLUDED.priority, active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		agency.ID, agency.Name, agency.ShortName, agency.Description, agency.Website,
		categories, prefixes, agency.Priority, agency.Active, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert agency %s", agency.ID)
}

func (s *PostgresStore) SetAgencyPriority(ctx context.Context, agencyID string, priority int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agencies SET priority = $1, updated_at = $2 WHERE id = $3`,
		priority, time.Now().UTC(), agencyID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set agency priority %s", agencyID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("agency not found: %s", agencyID)
	}
	return nil
}

func (s *PostgresStore) ReplaceAgencyMappings(ctx context.Context, agencyID string, prefixes []string, priority int) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM agency_mappings WHERE agency_id = $1`, agencyID); err != nil {
		return eris.Wrapf(err, "postgres: clear mappings for %s", agencyID)
	}
	for _, prefix := range prefixes {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO agency_mappings (prefix, agency_id, priority) VALUES ($1, $2, $3)`,
			prefix, agencyID, priority); err != nil {
			return eris.Wrapf(err, "postgres: insert mapping %s -> %s", prefix, agencyID)
		}
	}
	return nil
}

func (s *PostgresStore) AgenciesForPrefix(ctx context.Context, prefix string) ([]model.RankedAgency, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.name, a.short_name, a.description, a.website, a.categories,
			a.prefixes, a.priority, a.active, a.updated_at, m.priority
		FROM agency_mappings m
		JOIN agencies a ON a.id = m.agency_id
		WHERE (m.prefix = $1 OR m.prefix = $2) AND a.active
		ORDER BY m.priority DESC, a.priority DESC`,
		prefix, model.WildcardPrefix,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: agencies for prefix %s", prefix)
	}
	defer rows.Close()

	var ranked []model.RankedAgency
	for rows.Next() {
		var r model.RankedAgency
		var categories, prefixesJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.ShortName, &r.Description, &r.Website,
			&categories, &prefixesJSON, &r.Priority, &r.Active, &r.UpdatedAt,
			&r.MappingPriority); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ranked agency")
		}
		if err := json.Unmarshal(categories, &r.Categories); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal ranked categories")
		}
		if err := json.Unmarshal(prefixesJSON, &r.Prefixes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal ranked prefixes")
		}
		ranked = append(ranked, r)
	}
	return ranked, eris.Wrap(rows.Err(), "postgres: agencies for prefix iterate")
}

func scanPGSource(row pgx.Row) (*model.Source, error) {
	var src model.Source
	var params, headers, prefixes []byte
	var lastSuccess, lastFailure *time.Time

	err := row.Scan(&src.Name, &src.Agency, &src.URL, &src.Method, &params, &headers,
		&src.Category, &prefixes, &src.RequiresKey, &src.RateLimit, &src.Fallback,
		&src.SuccessRate, &lastSuccess, &lastFailure, &src.FailureCount, &src.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("source not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan source")
	}

	src.LastSuccess = lastSuccess
	src.LastFailure = lastFailure
	if err := json.Unmarshal(params, &src.Params); err != nil {
		return nil, eris.Wrap(err, "unmarshal source params")
	}
	if err := json.Unmarshal(headers, &src.Headers); err != nil {
		return nil, eris.Wrap(err, "unmarshal source headers")
	}
	if err := json.Unmarshal(prefixes, &src.Prefixes); err != nil {
		return nil, eris.Wrap(err, "unmarshal source prefixes")
	}
	return &src, nil
}
