package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lawgenie/hscompass/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	name          TEXT PRIMARY KEY,
	seq           INTEGER NOT NULL,
	agency        TEXT NOT NULL,
	url           TEXT NOT NULL,
	method        TEXT NOT NULL DEFAULT 'GET',
	params        TEXT NOT NULL DEFAULT '{}',
	headers       TEXT NOT NULL DEFAULT '{}',
	category      TEXT NOT NULL DEFAULT '',
	prefixes      TEXT NOT NULL DEFAULT '[]',
	requires_key  INTEGER NOT NULL DEFAULT 0,
	rate_limit    TEXT NOT NULL DEFAULT '',
	fallback      TEXT NOT NULL DEFAULT '',
	success_rate  REAL NOT NULL DEFAULT 0.0,
	last_success  DATETIME,
	last_failure  DATETIME,
	failure_count INTEGER NOT NULL DEFAULT 0,
	active        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS agencies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	short_name  TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	website     TEXT NOT NULL DEFAULT '',
	categories  TEXT NOT NULL DEFAULT '[]',
	prefixes    TEXT NOT NULL DEFAULT '[]',
	priority    INTEGER NOT NULL DEFAULT 0,
	active      INTEGER NOT NULL DEFAULT 1,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS agency_mappings (
	prefix    TEXT NOT NULL,
	agency_id TEXT NOT NULL REFERENCES agencies(id),
	priority  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (prefix, agency_id)
);

CREATE TABLE IF NOT EXISTS source_calls (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	source    TEXT NOT NULL,
	code      TEXT NOT NULL,
	success   INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	error     TEXT NOT NULL DEFAULT '',
	called_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sources_agency ON sources(agency);
CREATE INDEX IF NOT EXISTS idx_agency_mappings_prefix ON agency_mappings(prefix);
CREATE INDEX IF NOT EXISTS idx_source_calls_source ON source_calls(source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSourceColumns = `name, agency, url, method, params, headers, category, prefixes,
	requires_key, rate_limit, fallback, success_rate, last_success, last_failure,
	failure_count, active`

func (s *SQLiteStore) CountSources(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count sources")
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM sources ORDER BY seq ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) GetSource(ctx context.Context, name string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM sources WHERE name = ?`, name)
	src, err := scanSource(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", name)
	}
	return src, nil
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, src model.Source) error {
	params, headers, prefixes, err := marshalSourceJSON(src)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (name, seq, agency, url, method, params, headers, category,
			prefixes, requires_key, rate_limit, fallback, success_rate, failure_count, active)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sources), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			agency = excluded.agency, url = excluded.url, method = excluded.method,
			params = excluded.params, headers = excluded.headers, category = excluded.category,
			prefixes = excluded.prefixes, requires_key = excluded.requires_key,
			rate_limit = excluded.rate_limit, fallback = excluded.fallback,
			active = excluded.active`,
		src.Name, src.Agency, src.URL, src.Method, params, headers, src.Category,
		prefixes, boolInt(src.RequiresKey), src.RateLimit, src.Fallback,
		src.SuccessRate, src.FailureCount, boolInt(src.Active),
	)
	return eris.Wrapf(err, "sqlite: upsert source %s", src.Name)
}

func (s *SQLiteStore) SetSourceActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET active = ? WHERE name = ?`, boolInt(active), name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set source active %s", name)
	}
	return checkRowsAffected(res, "source", name)
}

func (s *SQLiteStore) RecordSourceOutcome(ctx context.Context, name string, outcome model.Outcome, at time.Time) (*model.Source, error) {
	query := `UPDATE sources SET success_rate = MAX(0.0, MIN(1.0, success_rate + ?))`
	args := []any{outcome.RateDelta()}
	if outcome == model.OutcomeSuccess {
		query += `, last_success = ?`
	} else {
		query += `, last_failure = ?, failure_count = failure_count + 1`
	}
	args = append(args, at.UTC())
	query += ` WHERE name = ?`
	args = append(args, name)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record outcome for %s", name)
	}
	if err := checkRowsAffected(res, "source", name); err != nil {
		return nil, err
	}
	return s.GetSource(ctx, name)
}

func (s *SQLiteStore) LogSourceCall(ctx context.Context, call model.SourceCall) error {
	calledAt := call.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_calls (source, code, success, latency_ms, error, called_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		call.Source, call.Code, boolInt(call.Success), call.Latency.Milliseconds(),
		call.Error, calledAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: log call for %s", call.Source)
}

func (s *SQLiteStore) ListAgencies(ctx context.Context) ([]model.Agency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, short_name, description, website, categories, prefixes,
			priority, active, updated_at
		FROM agencies ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list agencies")
	}
	defer rows.Close()

	var agencies []model.Agency
	for rows.Next() {
		var a model.Agency
		var categories, prefixes string
		var active int
		if err := rows.Scan(&a.ID, &a.Name, &a.ShortName, &a.Description, &a.Website,
			&categories, &prefixes, &a.Priority, &active, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agency")
		}
		a.Active = active != 0
		if err := json.Unmarshal([]byte(categories), &a.Categories); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal agency categories")
		}
		if err := json.Unmarshal([]byte(prefixes), &a.Prefixes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal agency prefixes")
		}
		agencies = append(agencies, a)
	}
	return agencies, eris.Wrap(rows.Err(), "sqlite: list agencies iterate")
}

func (s *SQLiteStore) UpsertAgency(ctx context.Context, agency model.Agency) error {
	categories, err := json.Marshal(agency.Categories)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal agency categories")
	}
	prefixes, err := json.Marshal(agency.Prefixes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal agency prefixes")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agencies (id, name, short_name, description, website, categories,
			prefixes, priority, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, short_name = excluded.short_name,
			description = excluded.description, website = excluded.website,
			categories = excluded.categories, prefixes = excluded.prefixes,
			priority = excluded.priority, active = excluded.active,
			updated_at = excluded.updated_at`,
		agency.ID, agency.Name, agency.ShortName, agency.Description, agency.Website,
		string(categories), string(prefixes), agency.Priority, boolInt(agency.Active),
		time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert agency %s", agency.ID)
}

func (s *SQLiteStore) SetAgencyPriority(ctx context.Context, agencyID string, priority int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agencies SET priority = ?, updated_at = ? WHERE id = ?`,
		priority, time.Now().UTC(), agencyID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set agency priority %s", agencyID)
	}
	return checkRowsAffected(res, "agency", agencyID)
}

func (s *SQLiteStore) ReplaceAgencyMappings(ctx context.Context, agencyID string, prefixes []string, priority int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mappings tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM agency_mappings WHERE agency_id = ?`, agencyID); err != nil {
		return eris.Wrapf(err, "sqlite: clear mappings for %s", agencyID)
	}
	for _, prefix := range prefixes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agency_mappings (prefix, agency_id, priority) VALUES (?, ?, ?)`,
			prefix, agencyID, priority); err != nil {
			return eris.Wrapf(err, "sqlite: insert mapping %s -> %s", prefix, agencyID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit mappings")
}

func (s *SQLiteStore) AgenciesForPrefix(ctx context.Context, prefix string) ([]model.RankedAgency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.short_name, a.description, a.website, a.categories,
			a.prefixes, a.priority, a.active, a.updated_at, m.priority
		FROM agency_mappings m
		JOIN agencies a ON a.id = m.agency_id
		WHERE (m.prefix = ? OR m.prefix = ?) AND a.active = 1
		ORDER BY m.priority DESC, a.priority DESC`,
		prefix, model.WildcardPrefix,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: agencies for prefix %s", prefix)
	}
	defer rows.Close()

	var ranked []model.RankedAgency
	for rows.Next() {
		var r model.RankedAgency
		var categories, prefixesJSON string
		var active int
		if err := rows.Scan(&r.ID, &r.Name, &r.ShortName, &r.Description, &r.Website,
			&categories, &prefixesJSON, &r.Priority, &active, &r.UpdatedAt,
			&r.MappingPriority); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ranked agency")
		}
		r.Active = active != 0
		if err := json.Unmarshal([]byte(categories), &r.Categories); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal ranked categories")
		}
		if err := json.Unmarshal([]byte(prefixesJSON), &r.Prefixes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal ranked prefixes")
		}
		ranked = append(ranked, r)
	}
	return ranked, eris.Wrap(rows.Err(), "sqlite: agencies for prefix iterate")
}

// helpers

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func marshalSourceJSON(src model.Source) (params, headers, prefixes string, err error) {
	p, err := json.Marshal(orEmptyMap(src.Params))
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal source params")
	}
	h, err := json.Marshal(orEmptyMap(src.Headers))
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal source headers")
	}
	px, err := json.Marshal(orEmptySlice(src.Prefixes))
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal source prefixes")
	}
	return string(p), string(h), string(px), nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var params, headers, prefixes string
	var requiresKey, active int
	var lastSuccess, lastFailure sql.NullTime

	err := row.Scan(&src.Name, &src.Agency, &src.URL, &src.Method, &params, &headers,
		&src.Category, &prefixes, &requiresKey, &src.RateLimit, &src.Fallback,
		&src.SuccessRate, &lastSuccess, &lastFailure, &src.FailureCount, &active)
	if err == sql.ErrNoRows {
		return nil, eris.New("source not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan source")
	}

	src.RequiresKey = requiresKey != 0
	src.Active = active != 0
	if lastSuccess.Valid {
		t := lastSuccess.Time
		src.LastSuccess = &t
	}
	if lastFailure.Valid {
		t := lastFailure.Time
		src.LastFailure = &t
	}
	if err := json.Unmarshal([]byte(params), &src.Params); err != nil {
		return nil, eris.Wrap(err, "unmarshal source params")
	}
	if err := json.Unmarshal([]byte(headers), &src.Headers); err != nil {
		return nil, eris.Wrap(err, "unmarshal source headers")
	}
	if err := json.Unmarshal([]byte(prefixes), &src.Prefixes); err != nil {
		return nil, eris.Wrap(err, "unmarshal source prefixes")
	}
	return &src, nil
}
