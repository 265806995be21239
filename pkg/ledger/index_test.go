package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteIndexInsertAndQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS receipts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	idx, err := NewSQLiteIndex(db)
	require.NoError(t, err)

	r := testDecision("feat-1")
	r.Hash = "sha256-abc"
	r.Timestamp = "2026-08-01T12:00:01Z"

	mock.ExpectExec("INSERT OR IGNORE INTO receipts").
		WithArgs(r.Hash, r.FeatureID, r.NeedsGeoCompliance, r.Confidence, r.PolicyVersion, r.Timestamp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, idx.Insert(context.Background(), r))

	body, err := json.Marshal(r)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT body FROM receipts WHERE feature_id").
		WithArgs("feat-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(string(body)))

	got, err := idx.ByFeature(context.Background(), "feat-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sha256-abc", got[0].Hash)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIndexInsertConflictIgnored(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS receipts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	idx, err := NewPostgresIndex(db)
	require.NoError(t, err)

	r := testDecision("feat-1")
	r.Hash = "sha256-abc"

	mock.ExpectExec("INSERT INTO receipts").
		WithArgs(r.Hash, r.FeatureID, r.NeedsGeoCompliance, r.Confidence, r.PolicyVersion, r.Timestamp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, idx.Insert(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}
