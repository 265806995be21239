package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/geogov/pkg/canonical"
	"github.com/Mindburn-Labs/geogov/pkg/contracts"
	"github.com/Mindburn-Labs/geogov/pkg/merkle"
)

func testClock() func() time.Time {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func testDecision(featureID string) contracts.Decision {
	return contracts.Decision{
		FeatureID:          featureID,
		NeedsGeoCompliance: true,
		Reasoning:          "Minor protection obligations apply",
		Regulations:        []string{"EU DSA Art. 28"},
		Signals:            []string{"geo_eu", "minors"},
		Citations:          []contracts.Citation{},
		Confidence:         0.9,
		MatchedRules:       []string{"eu-minors"},
		PolicyVersion:      "2026.08",
	}
}

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	l, err := Open(path, nil)
	require.NoError(t, err)
	l.WithClock(testClock())
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestCommitStampsHashesAndAppends(t *testing.T) {
	l, path := openTestLedger(t)

	r, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(r.Hash, canonical.HashPrefix))
	assert.Equal(t, "2026-08-01T12:00:01Z", r.Timestamp)

	want, err := canonical.DecisionHash(r)
	require.NoError(t, err)
	assert.Equal(t, want, r.Hash, "stored hash covers the timestamped content")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], r.Hash)
}

func TestCommitTimestampChangesHash(t *testing.T) {
	l, _ := openTestLedger(t)

	a, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)
	b, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash, "identical content at different times gets distinct receipts")
}

func TestReopenReplaysReceipts(t *testing.T) {
	l, path := openTestLedger(t)
	for i := 0; i < 3; i++ {
		_, err := l.Commit(context.Background(), testDecision(fmt.Sprintf("feat-%d", i)))
		require.NoError(t, err)
	}
	hashes := l.Hashes()
	require.NoError(t, l.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, 3, reopened.Len())
	assert.Equal(t, hashes, reopened.Hashes())
	assert.NoError(t, reopened.Verify())
}

func TestMerkleRootOverFiveReceipts(t *testing.T) {
	l, _ := openTestLedger(t)
	for i := 0; i < 5; i++ {
		_, err := l.Commit(context.Background(), testDecision(fmt.Sprintf("feat-%d", i)))
		require.NoError(t, err)
	}

	root := l.MerkleRoot()
	assert.NotEmpty(t, root)
	assert.Equal(t, merkle.Root(l.Hashes()), root)

	for _, h := range l.Hashes() {
		assert.NotEqual(t, h, root)
	}
}

func TestEmptyLedgerMerkleRootIsEmpty(t *testing.T) {
	l, _ := openTestLedger(t)
	assert.Empty(t, l.MerkleRoot())
	assert.Zero(t, l.Len())
}

func TestCommitAfterCloseFails(t *testing.T) {
	l, _ := openTestLedger(t)
	require.NoError(t, l.Close())

	_, err := l.Commit(context.Background(), testDecision("feat-1"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestVerifyDetectsTampering(t *testing.T) {
	l, path := openTestLedger(t)
	_, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "Minor protection", "Nothing to see", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	assert.Error(t, reopened.Verify())
}

// failingIndex always errors to prove commits survive index outages.
type failingIndex struct{}

func (failingIndex) Insert(context.Context, contracts.Receipt) error { return assert.AnError }
func (failingIndex) ByFeature(context.Context, string) ([]contracts.Receipt, error) {
	return nil, assert.AnError
}
func (failingIndex) Count(context.Context) (int, error) { return 0, assert.AnError }

func TestCommitSurvivesIndexFailure(t *testing.T) {
	l, _ := openTestLedger(t)
	l.WithIndex(failingIndex{})

	r, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, r.Hash)
	assert.Equal(t, 1, l.Len())
}
