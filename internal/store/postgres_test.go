package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawgenie/hscompass/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT name, agency, url`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSource(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSource_Scan(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lastSuccess := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"name", "agency", "url", "method", "params", "headers", "category", "prefixes",
		"requires_key", "rate_limit", "fallback", "success_rate", "last_success",
		"last_failure", "failure_count", "active",
	}).AddRow(
		"fda_cosmetic_event", "FDA", "https://api.fda.gov/cosmetic/event.json", "GET",
		[]byte(`{"limit":"5"}`), []byte(`{}`), "cosmetic", []byte(`["33"]`),
		false, "1000/hour", "", 0.3, &lastSuccess, (*time.Time)(nil), 2, true,
	)
	mock.ExpectQuery(`SELECT name, agency, url`).
		WithArgs("fda_cosmetic_event").
		WillReturnRows(rows)

	src, err := s.GetSource(context.Background(), "fda_cosmetic_event")
	require.NoError(t, err)
	assert.Equal(t, "FDA", src.Agency)
	assert.Equal(t, map[string]string{"limit": "5"}, src.Params)
	assert.Equal(t, []string{"33"}, src.Prefixes)
	assert.InDelta(t, 0.3, src.SuccessRate, 1e-9)
	require.NotNil(t, src.LastSuccess)
	assert.Nil(t, src.LastFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sources`).
		WithArgs("fda_cosmetic_event", "FDA", "https://api.fda.gov/cosmetic/event.json",
			"GET", pgxmock.AnyArg(), pgxmock.AnyArg(), "cosmetic", pgxmock.AnyArg(),
			false, "", "", 0.0, 0, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertSource(context.Background(), model.Source{
		Name:     "fda_cosmetic_event",
		Agency:   "FDA",
		URL:      "https://api.fda.gov/cosmetic/event.json",
		Method:   "GET",
		Category: "cosmetic",
		Prefixes: []string{"33"},
		Active:   true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordOutcome_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sources SET success_rate = GREATEST`).
		WithArgs(0.1, pgxmock.AnyArg(), "src").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rows := pgxmock.NewRows([]string{
		"name", "agency", "url", "method", "params", "headers", "category", "prefixes",
		"requires_key", "rate_limit", "fallback", "success_rate", "last_success",
		"last_failure", "failure_count", "active",
	}).AddRow(
		"src", "FDA", "https://api.example.gov/src", "GET",
		[]byte(`{}`), []byte(`{}`), "", []byte(`[]`),
		false, "", "", 0.1, (*time.Time)(nil), (*time.Time)(nil), 0, true,
	)
	mock.ExpectQuery(`SELECT name, agency, url`).
		WithArgs("src").
		WillReturnRows(rows)

	got, err := s.RecordSourceOutcome(context.Background(), "src", model.OutcomeSuccess, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 0.1, got.SuccessRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordOutcome_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sources SET success_rate = GREATEST`).
		WithArgs(-0.1, pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := s.RecordSourceOutcome(context.Background(), "ghost", model.OutcomeFailure, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AgenciesForPrefix(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "name", "short_name", "description", "website", "categories",
		"prefixes", "priority", "active", "updated_at", "priority",
	}).AddRow(
		"FDA", "Food and Drug Administration", "FDA", "", "https://www.fda.gov",
		[]byte(`["cosmetic"]`), []byte(`["33"]`), 10, true, now, 10,
	).AddRow(
		"CBP", "Customs and Border Protection", "CBP", "", "https://www.cbp.gov",
		[]byte(`[]`), []byte(`["*"]`), 9, true, now, 9,
	)
	mock.ExpectQuery(`FROM agency_mappings m`).
		WithArgs("33", model.WildcardPrefix).
		WillReturnRows(rows)

	ranked, err := s.AgenciesForPrefix(context.Background(), "33")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "FDA", ranked[0].ID)
	assert.Equal(t, 10, ranked[0].MappingPriority)
	assert.Equal(t, "CBP", ranked[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogSourceCall(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO source_calls`).
		WithArgs("src", "3304.99.50.00", true, int64(120), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.LogSourceCall(context.Background(), model.SourceCall{
		Source:  "src",
		Code:    "3304.99.50.00",
		Success: true,
		Latency: 120 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
