package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/geogov/pkg/canonical"
)

// EngineVersion gates policy documents via min_engine_version. Documents
// requiring a newer engine degrade to an empty rule set rather than
// evaluating under semantics they were not written for.
const EngineVersion = "1.0.0"

// policySchema validates the structural shape of a policy document after
// YAML decoding. Validation failures degrade, they never hard-fail a load.
const policySchema = `{
  "type": "object",
  "required": ["rules"],
  "properties": {
    "version": {"type": "string"},
    "min_engine_version": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "verdict": {"type": "boolean"},
          "when_any": {
            "type": "object",
            "properties": {
              "tags": {"type": "array", "items": {"type": "string"}},
              "text": {"type": "array", "items": {"type": "string"}}
            }
          },
          "when_any_text": {"type": "array", "items": {"type": "string"}},
          "when_all_text": {"type": "array", "items": {"type": "string"}},
          "and_text": {"type": "array", "items": {"type": "string"}},
          "expression": {"type": "string"},
          "regulations": {"type": "array", "items": {"type": "string"}},
          "reason": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("policy.schema.json", policySchema)

// FileStore loads a YAML policy document from disk. A missing or invalid
// file yields an empty rule list so analyses keep running on a broken
// deployment; the condition is logged, not returned.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	doc      PolicyDocument
	snapshot []byte
	snapHash string
}

// NewFileStore creates a store reading the policy document at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With("component", "policy_store"),
	}
}

// Load reads, validates, and version-gates the policy document, returning
// its rules in declared order. Every failure mode degrades to an empty
// list with a nil error.
func (s *FileStore) Load() ([]Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("policy document unreadable, using empty rule set", "path", s.path, "error", err)
		s.set(PolicyDocument{}, nil)
		return nil, nil
	}

	doc, err := ParseDocument(data)
	if err != nil {
		s.logger.Warn("policy document rejected, using empty rule set", "path", s.path, "error", err)
		s.set(PolicyDocument{}, nil)
		return nil, nil
	}

	s.set(doc, data)
	s.logger.Info("policy document loaded",
		"path", s.path,
		"version", doc.Version,
		"rules", len(doc.Rules))
	return doc.Rules, nil
}

func (s *FileStore) set(doc PolicyDocument, raw []byte) {
	hash := ""
	if raw != nil {
		hash = canonical.HashBytes(raw)
	}
	s.mu.Lock()
	s.doc = doc
	s.snapshot = raw
	s.snapHash = hash
	s.mu.Unlock()
}

// Document returns the most recently loaded policy document.
func (s *FileStore) Document() PolicyDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Snapshot returns the verbatim bytes of the loaded document and their
// content hash, for inclusion in evidence bundles. Both are empty when no
// document loaded successfully.
func (s *FileStore) Snapshot() ([]byte, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.snapHash
}

// ParseDocument decodes and validates raw YAML policy bytes.
func ParseDocument(data []byte) (PolicyDocument, error) {
	var doc PolicyDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(false)
	if err := dec.Decode(&doc); err != nil {
		return PolicyDocument{}, fmt.Errorf("parse policy: %w", err)
	}

	if err := validateDocument(data); err != nil {
		return PolicyDocument{}, err
	}

	if doc.MinEngineVersion != "" {
		if err := checkEngineVersion(doc.MinEngineVersion); err != nil {
			return PolicyDocument{}, err
		}
	}

	return doc, nil
}

func validateDocument(data []byte) error {
	// The schema compiler consumes JSON values, so the YAML document is
	// round-tripped through generic decoding first.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("normalize policy: %w", err)
	}
	var jsonValue any
	if err := json.Unmarshal(jsonBytes, &jsonValue); err != nil {
		return fmt.Errorf("normalize policy: %w", err)
	}
	if err := compiledSchema.Validate(jsonValue); err != nil {
		return fmt.Errorf("validate policy: %w", err)
	}
	return nil
}

func checkEngineVersion(minVersion string) error {
	min, err := semver.NewVersion(strings.TrimPrefix(minVersion, "v"))
	if err != nil {
		return fmt.Errorf("parse min_engine_version %q: %w", minVersion, err)
	}
	current := semver.MustParse(EngineVersion)
	if current.LessThan(min) {
		return fmt.Errorf("policy requires engine >= %s, running %s", min, EngineVersion)
	}
	return nil
}

// StaticStore serves a fixed rule list, used by tests and embedded
// deployments that carry policy in code.
type StaticStore struct {
	Rules []Rule
}

// Load returns the configured rules unchanged.
func (s *StaticStore) Load() ([]Rule, error) {
	return s.Rules, nil
}
