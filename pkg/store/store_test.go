package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/store"
	"github.com/scoutline/discovery/pkg/types"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "pgx"), mock
}

func TestEpisodeStorePut(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewEpisodeStore(db)

	mock.ExpectExec("INSERT INTO episodes").
		WithArgs("ep-1", "entity-1", "SIGNAL", "RFP", "found an RFP", sqlmock.AnyArg(), 0.6, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Put(context.Background(), types.Episode{
		ID:          "ep-1",
		EntityID:    "entity-1",
		Type:        "SIGNAL",
		Subtype:     "RFP",
		Description: "found an RFP",
		Timestamp:   time.Now(),
		Confidence:  0.6,
		SourceRefs:  []string{"https://example.com"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEpisodeStoreQuery(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewEpisodeStore(db)

	rows := sqlmock.NewRows([]string{"id", "entity_id", "type", "subtype", "description", "timestamp", "confidence", "source_refs"}).
		AddRow("ep-1", "entity-1", "SIGNAL", "RFP", "found an RFP", time.Now(), 0.6, "{https://example.com}")

	mock.ExpectQuery("SELECT .* FROM episodes").
		WithArgs("entity-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := s.Query(context.Background(), "entity-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ep-1", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingStoreGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewBindingStore(db)

	mock.ExpectQuery("SELECT .* FROM runtime_bindings").
		WithArgs("entity-1", "tmpl-1").
		WillReturnError(sql.ErrNoRows)

	got, err := s.Get(context.Background(), "entity-1", "tmpl-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOutcomeStoreRecordOutcome(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewOutcomeStore(db)

	mock.ExpectExec("INSERT INTO outcome_records").
		WithArgs("sig-1", "entity-1", "WON", 5000.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.RecordOutcome(context.Background(), types.OutcomeRecord{
		SignalID:    "sig-1",
		EntityID:    "entity-1",
		Status:      types.OutcomeWon,
		ValueActual: 5000.0,
		RecordedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryBindingStoreRoundTrip(t *testing.T) {
	s := store.NewMemoryBindingStore()
	b := &types.RuntimeBinding{EntityID: "e1", TemplateID: "t1", State: types.BindingExploring, UsageCount: 1}
	require.NoError(t, s.Put(context.Background(), b))

	got, err := s.Get(context.Background(), "e1", "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.UsageCount)

	list, err := s.List(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
