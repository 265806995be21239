package ledger

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/geogov/pkg/canonical"
	"github.com/Mindburn-Labs/geogov/pkg/signing"
)

// Exporter assembles evidence bundles from a ledger: the raw receipt
// stream, a CSV summary, the policy snapshot the decisions ran under,
// the Merkle root, and a signed manifest binding them together.
type Exporter struct {
	ledger  *Ledger
	keyring *signing.Keyring
	clock   func() time.Time
}

// NewExporter creates an exporter. A nil keyring produces unsigned
// manifests.
func NewExporter(l *Ledger, keyring *signing.Keyring) *Exporter {
	return &Exporter{ledger: l, keyring: keyring, clock: time.Now}
}

// WithClock overrides the manifest timestamp source for testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// WriteCSV writes the receipt summary table.
func (e *Exporter) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"feature_id", "needs_geo_compliance", "reasoning", "regulations",
		"signals", "confidence", "matched_rules", "hash", "ts", "policy_version",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("ledger: write csv header: %w", err)
	}
	for _, r := range e.ledger.Receipts() {
		row := []string{
			r.FeatureID,
			strconv.FormatBool(r.NeedsGeoCompliance),
			r.Reasoning,
			strings.Join(r.Regulations, "; "),
			strings.Join(r.Signals, "; "),
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			strings.Join(r.MatchedRules, "; "),
			r.Hash,
			r.Timestamp,
			r.PolicyVersion,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("ledger: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Manifest describes one exported bundle. Signature, when present, is
// the Ed25519 signature over the canonical form of the manifest with
// Signature and PublicKey cleared.
type Manifest struct {
	GeneratedAt  string `json:"generated_at"`
	ReceiptCount int    `json:"receipt_count"`
	MerkleRoot   string `json:"merkle_root"`
	PolicyHash   string `json:"policy_hash,omitempty"`
	PublicKey    string `json:"public_key,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

// ExportBundle builds the zip evidence bundle. policySnapshot is the
// verbatim policy document the receipts were produced under; it may be
// nil when no policy loaded. Returns the zip bytes and their checksum.
func (e *Exporter) ExportBundle(policySnapshot []byte, policyHash string) ([]byte, string, error) {
	receipts := e.ledger.Receipts()

	var jsonl bytes.Buffer
	for _, r := range receipts {
		line, err := json.Marshal(r)
		if err != nil {
			return nil, "", fmt.Errorf("ledger: marshal receipt: %w", err)
		}
		jsonl.Write(line)
		jsonl.WriteByte('\n')
	}

	var csvBuf bytes.Buffer
	if err := e.WriteCSV(&csvBuf); err != nil {
		return nil, "", err
	}

	root := e.ledger.MerkleRoot()
	manifest := Manifest{
		GeneratedAt:  e.clock().UTC().Format(time.RFC3339),
		ReceiptCount: len(receipts),
		MerkleRoot:   root,
		PolicyHash:   policyHash,
	}
	if e.keyring != nil {
		unsigned, err := canonical.Canonicalize(manifest)
		if err != nil {
			return nil, "", err
		}
		sig, err := e.keyring.Sign(unsigned)
		if err != nil {
			return nil, "", fmt.Errorf("ledger: sign manifest: %w", err)
		}
		manifest.PublicKey = e.keyring.PublicKeyHex()
		manifest.Signature = sig
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("ledger: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	files := []struct {
		name string
		data []byte
	}{
		{"receipts.jsonl", jsonl.Bytes()},
		{"outputs.csv", csvBuf.Bytes()},
		{"merkle.txt", []byte(root + "\n")},
		{"manifest.json", manifestJSON},
	}
	if policySnapshot != nil {
		files = append(files, struct {
			name string
			data []byte
		}{"policy_snapshot.yaml", policySnapshot})
	}

	for _, f := range files {
		zf, err := w.Create(f.name)
		if err != nil {
			return nil, "", fmt.Errorf("ledger: create %s: %w", f.name, err)
		}
		if _, err := zf.Write(f.data); err != nil {
			return nil, "", fmt.Errorf("ledger: write %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	return zipBytes, canonical.HashBytes(zipBytes), nil
}

// VerifyManifest checks a manifest's signature against its embedded
// public key material using the given keyring.
func VerifyManifest(m Manifest, keyring *signing.Keyring) (bool, error) {
	sig := m.Signature
	m.Signature = ""
	m.PublicKey = ""
	unsigned, err := canonical.Canonicalize(m)
	if err != nil {
		return false, err
	}
	return keyring.Verify(unsigned, sig), nil
}
