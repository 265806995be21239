package ledger

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/geogov/pkg/signing"
)

func readZipEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer func() { _ = rc.Close() }()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return data
		}
	}
	t.Fatalf("bundle entry %s not found", name)
	return nil
}

func TestWriteCSVSummarizesReceipts(t *testing.T) {
	l, _ := openTestLedger(t)
	_, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewExporter(l, nil).WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "feature_id", rows[0][0])
	assert.Equal(t, "feat-1", rows[1][0])
	assert.Equal(t, "true", rows[1][1])
	assert.Equal(t, "EU DSA Art. 28", rows[1][3])
	assert.Equal(t, "0.9", rows[1][5])
}

func TestExportBundleContainsAllEvidence(t *testing.T) {
	l, _ := openTestLedger(t)
	for _, id := range []string{"feat-1", "feat-2"} {
		_, err := l.Commit(context.Background(), testDecision(id))
		require.NoError(t, err)
	}

	keyring := signing.NewKeyring(nil)
	exporter := NewExporter(l, keyring).WithClock(func() time.Time {
		return time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	})

	policy := []byte("version: \"2026.08\"\nrules: []\n")
	bundle, checksum, err := exporter.ExportBundle(policy, "sha256-deadbeef")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(checksum, "sha256-"))

	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)

	jsonl := readZipEntry(t, zr, "receipts.jsonl")
	assert.Len(t, strings.Split(strings.TrimSpace(string(jsonl)), "\n"), 2)

	merkleTxt := strings.TrimSpace(string(readZipEntry(t, zr, "merkle.txt")))
	assert.Equal(t, l.MerkleRoot(), merkleTxt)

	assert.Equal(t, policy, readZipEntry(t, zr, "policy_snapshot.yaml"))

	var manifest Manifest
	require.NoError(t, json.Unmarshal(readZipEntry(t, zr, "manifest.json"), &manifest))
	assert.Equal(t, 2, manifest.ReceiptCount)
	assert.Equal(t, l.MerkleRoot(), manifest.MerkleRoot)
	assert.Equal(t, "sha256-deadbeef", manifest.PolicyHash)
	assert.Equal(t, "2026-08-02T00:00:00Z", manifest.GeneratedAt)

	ok, err := VerifyManifest(manifest, keyring)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExportBundleUnsignedWithoutKeyring(t *testing.T) {
	l, _ := openTestLedger(t)
	_, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)

	bundle, _, err := NewExporter(l, nil).ExportBundle(nil, "")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)

	var manifest Manifest
	require.NoError(t, json.Unmarshal(readZipEntry(t, zr, "manifest.json"), &manifest))
	assert.Empty(t, manifest.Signature)

	for _, f := range zr.File {
		assert.NotEqual(t, "policy_snapshot.yaml", f.Name, "no snapshot entry without a loaded policy")
	}
}

func TestVerifyManifestRejectsTampering(t *testing.T) {
	l, _ := openTestLedger(t)
	_, err := l.Commit(context.Background(), testDecision("feat-1"))
	require.NoError(t, err)

	keyring := signing.NewKeyring(nil)
	bundle, _, err := NewExporter(l, keyring).ExportBundle(nil, "")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(readZipEntry(t, zr, "manifest.json"), &manifest))

	manifest.ReceiptCount = 99
	ok, err := VerifyManifest(manifest, keyring)
	require.NoError(t, err)
	assert.False(t, ok)
}
