// Package signals pattern-matches a feature artifact against a fixed
// taxonomy of compliance-relevant topics. Extraction is pure and
// deterministic: topic membership is decided solely by the versioned
// pattern table below, so identical input text always yields identical
// signals.
package signals

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

// TableVersion tags the pattern table. Bump it whenever a pattern is
// added or changed, so receipts can be traced to the taxonomy that
// produced their signals.
const TableVersion = "v1"

// topicPattern binds one taxonomy topic to its detection pattern.
type topicPattern struct {
	Topic   string
	Pattern *regexp.Regexp
}

// patternTable is the fixed, ordered taxonomy. Patterns are compiled at
// package load; a malformed pattern is a programmer error and panics
// before the process can serve anything.
var patternTable = []topicPattern{
	{"personalization", regexp.MustCompile(`(?i)personali[sz]ed?|ranking|feed|recommendation`)},
	{"minors", regexp.MustCompile(`(?i)minor|under\s*18|teen|age\s*gate|parental`)},
	{"moderation", regexp.MustCompile(`(?i)appeal|takedown|notice|moderat|remov`)},
	{"geo_eu", regexp.MustCompile(`(?i)\bEU\b|EEA|Europe|France|Germany|Italy|Spain`)},
	{"geo_us", regexp.MustCompile(`(?i)\bUS\b|United\s*States|America|California|Florida|Utah`)},
	{"safety", regexp.MustCompile(`(?i)NCMEC|CSAM|child\s*sexual\s*abuse|safety`)},
	{"ads", regexp.MustCompile(`(?i)advertis|targeting|ad\s*serv|marketing`)},
}

var foldCaser = cases.Fold()

// Extractor derives a SignalSet from a FeatureArtifact. The zero value is
// ready to use; all instances share the same immutable pattern table.
type Extractor struct{}

// NewExtractor returns a signal extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract copies the artifact's tags verbatim, matches the pattern table
// against the concatenated title, description and code hints, and carries
// the raw hints through for retrieval queries. No I/O, no failure mode.
func (e *Extractor) Extract(artifact contracts.FeatureArtifact) contracts.SignalSet {
	set := contracts.NewSignalSet()

	for _, tag := range artifact.Tags {
		set.Tags[tag] = struct{}{}
	}

	text := CombinedText(artifact)
	for _, tp := range patternTable {
		if tp.Pattern.MatchString(text) {
			set.TextSignals[tp.Topic] = struct{}{}
		}
	}

	set.Hints = append([]string(nil), artifact.CodeHints...)
	return set
}

// Topics returns the taxonomy topic names in table order.
func Topics() []string {
	out := make([]string, len(patternTable))
	for i, tp := range patternTable {
		out[i] = tp.Topic
	}
	return out
}

// CombinedText is the normalized evaluation text for an artifact: the
// title, description, and code hints joined by spaces. The rules engine
// matches its text conditions against this exact form.
func CombinedText(artifact contracts.FeatureArtifact) string {
	return NormalizeText(artifact.Title + " " + artifact.Description + " " + strings.Join(artifact.CodeHints, " "))
}

// NormalizeText applies Unicode NFKC normalization and case folding, so
// that visually equivalent text (full-width characters, odd casing)
// matches the same patterns.
func NormalizeText(s string) string {
	return foldCaser.String(norm.NFKC.String(s))
}
