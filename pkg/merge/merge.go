// Package merge combines the rules verdict and the ensemble outcome
// into a single decision under exactly one authority. The authority is
// exclusive: the non-authoritative side contributes context (signals,
// confidence) but never the compliance answer.
package merge

import (
	"sort"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

// Authority selects which side owns the compliance answer.
type Authority string

const (
	// AuthorityRules takes the answer, reasoning, regulations, and
	// matched rules from the deterministic verdict.
	AuthorityRules Authority = "rules"
	// AuthorityModel takes the answer from the arbiter; matched rules
	// collapse to the model decision marker.
	AuthorityModel Authority = "model"
)

// Merged is the authority-resolved core of a decision before hashing
// and receipt assembly.
type Merged struct {
	NeedsCompliance bool
	Reasoning       string
	Regulations     []string
	MatchedRules    []string
	Signals         []string
	Confidence      float64
}

// Merge resolves verdict and outcome under the given authority. Signals
// are always the deduplicated union of pattern-derived and arbiter
// signals; confidence always comes from the arbiter.
func Merge(authority Authority, verdict contracts.Verdict, patternSignals []string, arbiter contracts.ArbiterResult, proposer contracts.ProposerResult) Merged {
	m := Merged{
		Signals:    unionSorted(patternSignals, arbiter.Signals),
		Confidence: arbiter.Confidence,
	}

	if authority == AuthorityModel {
		if arbiter.Decision != nil {
			m.NeedsCompliance = *arbiter.Decision
		}
		m.Reasoning = arbiter.Notes
		m.Regulations = distinctRegulations(proposer.Claims)
		m.MatchedRules = []string{contracts.DecisionSourceModel}
		return m
	}

	m.NeedsCompliance = verdict.OK
	m.Reasoning = verdict.Reason
	m.Regulations = append([]string{}, verdict.Regulations...)
	m.MatchedRules = append([]string{}, verdict.MatchedIDs...)
	return m
}

func distinctRegulations(claims []contracts.Claim) []string {
	seen := make(map[string]struct{}, len(claims))
	out := make([]string, 0, len(claims))
	for _, c := range claims {
		if c.Regulation == "" {
			continue
		}
		if _, ok := seen[c.Regulation]; ok {
			continue
		}
		seen[c.Regulation] = struct{}{}
		out = append(out, c.Regulation)
	}
	return out
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
