package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteIndex mirrors receipts into a local SQLite database for ad hoc
// querying. Placeholders use the ? style.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps db and creates the receipts table if needed.
func NewSQLiteIndex(db *sql.DB) (*SQLiteIndex, error) {
	s := &SQLiteIndex{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteIndex opens (or creates) the database file at path.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite index: %w", err)
	}
	return NewSQLiteIndex(db)
}

func (s *SQLiteIndex) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS receipts (
        hash TEXT PRIMARY KEY,
        feature_id TEXT NOT NULL,
        needs_geo_compliance INTEGER NOT NULL,
        confidence REAL NOT NULL,
        policy_version TEXT,
        ts TEXT,
        body JSON NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_receipts_feature ON receipts(feature_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteIndex) Insert(ctx context.Context, r contracts.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("ledger: marshal receipt: %w", err)
	}
	query := `
        INSERT OR IGNORE INTO receipts (hash, feature_id, needs_geo_compliance, confidence, policy_version, ts, body)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	_, err = s.db.ExecContext(ctx, query,
		r.Hash, r.FeatureID, r.NeedsGeoCompliance, r.Confidence, r.PolicyVersion, r.Timestamp, string(body))
	return err
}

func (s *SQLiteIndex) ByFeature(ctx context.Context, featureID string) ([]contracts.Receipt, error) {
	query := `SELECT body FROM receipts WHERE feature_id = ? ORDER BY ts`
	rows, err := s.db.QueryContext(ctx, query, featureID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var receipts []contracts.Receipt
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r contracts.Receipt
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("ledger: decode indexed receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts`).Scan(&n)
	return n, err
}

// Close releases the underlying database handle.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
