// Package contracts defines the shared data model of the geo-compliance
// screening pipeline: the submitted feature artifact, the derived signal
// set, the rules verdict, the ensemble stage results, and the final
// hashed Decision that the evidence ledger persists as a receipt.
package contracts

import "sort"

// FeatureArtifact is the input unit: one software feature description
// submitted for compliance screening. It is immutable once submitted;
// every downstream stage consumes it read-only.
type FeatureArtifact struct {
	FeatureID   string   `json:"feature_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Docs        []string `json:"docs,omitempty"`
	CodeHints   []string `json:"code_hints,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SignalSet is the per-artifact derived signal state: declared tags copied
// from the artifact, topic signals derived from pattern matching, and the
// raw code hints carried through for retrieval queries.
//
// Topic-signal membership is determined solely by the fixed pattern table
// in the signals package; identical input text always yields an identical
// set.
type SignalSet struct {
	Tags        map[string]struct{} `json:"-"`
	TextSignals map[string]struct{} `json:"-"`
	Hints       []string            `json:"hints,omitempty"`
}

// NewSignalSet returns an empty SignalSet with initialized sets.
func NewSignalSet() SignalSet {
	return SignalSet{
		Tags:        make(map[string]struct{}),
		TextSignals: make(map[string]struct{}),
	}
}

// HasTag reports whether the artifact declared the given tag.
func (s SignalSet) HasTag(tag string) bool {
	_, ok := s.Tags[tag]
	return ok
}

// HasTextSignal reports whether pattern matching produced the given topic.
func (s SignalSet) HasTextSignal(name string) bool {
	_, ok := s.TextSignals[name]
	return ok
}

// ToList returns the union of tags and text signals, sorted so that
// identical sets always serialize identically.
func (s SignalSet) ToList() []string {
	seen := make(map[string]struct{}, len(s.Tags)+len(s.TextSignals))
	for t := range s.Tags {
		seen[t] = struct{}{}
	}
	for t := range s.TextSignals {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Passage is one retrieved context unit: a content snippet plus the
// reference of the source it came from. Returned by Retriever
// implementations; an empty result set is valid.
type Passage struct {
	Content   string            `json:"content"`
	SourceRef string            `json:"source_ref"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
