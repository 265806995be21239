package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresIndex mirrors receipts into Postgres for shared querying
// across analyzer instances. Placeholders use the $N style.
type PostgresIndex struct {
	db *sql.DB
}

// NewPostgresIndex wraps db and creates the receipts table if needed.
func NewPostgresIndex(db *sql.DB) (*PostgresIndex, error) {
	p := &PostgresIndex{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenPostgresIndex connects with a lib/pq DSN.
func OpenPostgresIndex(dsn string) (*PostgresIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open postgres index: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ledger: ping postgres: %w", err)
	}
	return NewPostgresIndex(db)
}

func (p *PostgresIndex) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS receipts (
        hash TEXT PRIMARY KEY,
        feature_id TEXT NOT NULL,
        needs_geo_compliance BOOLEAN NOT NULL,
        confidence DOUBLE PRECISION NOT NULL,
        policy_version TEXT,
        ts TEXT,
        body JSONB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_receipts_feature ON receipts(feature_id);`
	_, err := p.db.ExecContext(context.Background(), query)
	return err
}

func (p *PostgresIndex) Insert(ctx context.Context, r contracts.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("ledger: marshal receipt: %w", err)
	}
	query := `
        INSERT INTO receipts (hash, feature_id, needs_geo_compliance, confidence, policy_version, ts, body)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (hash) DO NOTHING
    `
	_, err = p.db.ExecContext(ctx, query,
		r.Hash, r.FeatureID, r.NeedsGeoCompliance, r.Confidence, r.PolicyVersion, r.Timestamp, string(body))
	return err
}

func (p *PostgresIndex) ByFeature(ctx context.Context, featureID string) ([]contracts.Receipt, error) {
	query := `SELECT body FROM receipts WHERE feature_id = $1 ORDER BY ts`
	rows, err := p.db.QueryContext(ctx, query, featureID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var receipts []contracts.Receipt
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r contracts.Receipt
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("ledger: decode indexed receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts`).Scan(&n)
	return n, err
}

// Close releases the underlying database handle.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}
