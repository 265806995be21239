// Package ledger is the evidence layer: every analysis commits its
// Decision as an append-only JSONL receipt whose content hash covers the
// canonical decision form. Receipts are never updated or deleted, and
// the Merkle root over the committed hashes lets an auditor verify a
// whole export in one comparison.
package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Mindburn-Labs/geogov/pkg/canonical"
	"github.com/Mindburn-Labs/geogov/pkg/contracts"
	"github.com/Mindburn-Labs/geogov/pkg/merkle"
)

var (
	// ErrClosed is returned when committing to a closed ledger.
	ErrClosed = errors.New("ledger: closed")
)

// Index is an optional queryable mirror of the receipt stream. Inserts
// are best-effort: an index failure never blocks a commit, because the
// JSONL file remains the source of truth.
type Index interface {
	Insert(ctx context.Context, r contracts.Receipt) error
	ByFeature(ctx context.Context, featureID string) ([]contracts.Receipt, error)
	Count(ctx context.Context) (int, error)
}

// Ledger appends receipts to a JSONL file under a single-writer mutex.
// Existing receipts are loaded at open so the in-memory view survives
// restarts.
type Ledger struct {
	mu       sync.RWMutex
	path     string
	file     *os.File
	receipts []contracts.Receipt
	closed   bool
	clock    func() time.Time
	index    Index
	logger   *slog.Logger
}

// Open creates or reopens the ledger file at path and replays its
// receipts.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		path:   path,
		clock:  time.Now,
		logger: logger.With("component", "ledger"),
	}
	if err := l.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// WithClock overrides the timestamp source for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// WithIndex attaches a queryable receipt index.
func (l *Ledger) WithIndex(idx Index) *Ledger {
	l.index = idx
	return l
}

func (l *Ledger) replay() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var r contracts.Receipt
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("ledger: corrupt receipt at line %d: %w", line, err)
		}
		l.receipts = append(l.receipts, r)
	}
	return scanner.Err()
}

// Commit stamps, hashes, and appends the decision as a receipt,
// returning the committed form. The timestamp is set from the ledger
// clock unless the decision already carries one; the hash always covers
// the final timestamped content.
func (l *Ledger) Commit(ctx context.Context, d contracts.Decision) (contracts.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return contracts.Receipt{}, ErrClosed
	}

	if d.Timestamp == "" {
		d.Timestamp = l.clock().UTC().Format(time.RFC3339)
	}
	hash, err := canonical.DecisionHash(d)
	if err != nil {
		return contracts.Receipt{}, err
	}
	d.Hash = hash

	line, err := json.Marshal(d)
	if err != nil {
		return contracts.Receipt{}, fmt.Errorf("ledger: marshal receipt: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return contracts.Receipt{}, fmt.Errorf("ledger: append receipt: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return contracts.Receipt{}, fmt.Errorf("ledger: sync: %w", err)
	}

	l.receipts = append(l.receipts, d)

	if l.index != nil {
		if err := l.index.Insert(ctx, d); err != nil {
			l.logger.Warn("receipt index insert failed", "feature_id", d.FeatureID, "error", err)
		}
	}
	return d, nil
}

// Receipts returns a copy of all committed receipts in commit order.
func (l *Ledger) Receipts() []contracts.Receipt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]contracts.Receipt, len(l.receipts))
	copy(out, l.receipts)
	return out
}

// Hashes returns the receipt hashes in commit order.
func (l *Ledger) Hashes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.receipts))
	for i, r := range l.receipts {
		out[i] = r.Hash
	}
	return out
}

// MerkleRoot reduces the committed hashes to a single root. An empty
// ledger yields the empty string.
func (l *Ledger) MerkleRoot() string {
	return merkle.Root(l.Hashes())
}

// Len reports the number of committed receipts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.receipts)
}

// Verify recomputes every receipt hash against its content and reports
// the first mismatch.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, r := range l.receipts {
		want, err := canonical.DecisionHash(r)
		if err != nil {
			return err
		}
		if want != r.Hash {
			return fmt.Errorf("ledger: receipt %d (%s) hash mismatch", i, r.FeatureID)
		}
	}
	return nil
}

// Close releases the underlying file. Further commits fail with
// ErrClosed.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
