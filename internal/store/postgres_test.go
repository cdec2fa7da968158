package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetGraph_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM graphs WHERE domain = \$1`).
		WithArgs("unknown.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetGraph(context.Background(), "unknown.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetGraph_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	data, err := json.Marshal(storeTestGraph("acme.com"))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM graphs WHERE domain = \$1`).
		WithArgs("acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	g, err := s.GetGraph(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", g.Domain)
	assert.Len(t, g.Entities, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveGraph_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO graphs .* ON CONFLICT`).
		WithArgs("acme.com", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveGraph(context.Background(), storeTestGraph("acme.com"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertCitations_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"citations"},
		[]string{"id", "domain", "platform", "response_text", "url", "cited_at"}).
		WillReturnResult(2)

	cs := []model.Citation{
		{Platform: "chatgpt", ResponseText: "a", URL: "u", CitedAt: time.Now().UTC()},
		{Platform: "claude", ResponseText: "b", URL: "u", CitedAt: time.Now().UTC()},
	}
	n, err := s.InsertCitations(context.Background(), cs, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertCitations_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.InsertCitations(context.Background(), nil, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPostgresStore_GetPrediction_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM predictions WHERE domain = \$1`).
		WithArgs("unknown.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPrediction(context.Background(), "unknown.com")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePrediction_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO predictions .* ON CONFLICT`).
		WithArgs("acme.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SavePrediction(context.Background(), model.CitationPrediction{
		Domain: "acme.com", Probability: 0.4, GeneratedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sync_dlq`).
		WithArgs(pgxmock.AnyArg(), "acme.com", "gemini", "transient", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.EnqueueDLQ(context.Background(), resilience.DLQEntry{
		Domain: "acme.com", OperationID: "op-1", Platform: "gemini",
		Error: "simulated failure", ErrorType: "transient",
		CreatedAt: time.Now().UTC(), LastFailedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sync_dlq`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
