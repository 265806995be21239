package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

func boolPtr(v bool) *bool { return &v }

func TestMergeRulesAuthorityTakesVerdictWholesale(t *testing.T) {
	verdict := contracts.Verdict{
		OK:          true,
		MatchedIDs:  []string{"eu-minors"},
		Regulations: []string{"EU DSA Art. 28"},
		Reason:      "Minor protection obligations apply",
	}
	arbiter := contracts.ArbiterResult{
		Signals:    []string{"minors"},
		Notes:      "model would have said no",
		Confidence: 0.3,
		Decision:   boolPtr(false),
	}

	m := Merge(AuthorityRules, verdict, []string{"geo_eu"}, arbiter, contracts.ProposerResult{})

	assert.True(t, m.NeedsCompliance, "arbiter opinion must not leak into the answer")
	assert.Equal(t, "Minor protection obligations apply", m.Reasoning)
	assert.Equal(t, []string{"EU DSA Art. 28"}, m.Regulations)
	assert.Equal(t, []string{"eu-minors"}, m.MatchedRules)
	assert.Equal(t, []string{"geo_eu", "minors"}, m.Signals)
	assert.Equal(t, 0.3, m.Confidence)
}

func TestMergeModelAuthorityTakesArbiterDecision(t *testing.T) {
	verdict := contracts.Verdict{OK: false, Reason: "No compliance requirements detected"}
	arbiter := contracts.ArbiterResult{
		Notes:      "recommender targets EU minors",
		Confidence: 0.9,
		Decision:   boolPtr(true),
	}
	proposer := contracts.ProposerResult{Claims: []contracts.Claim{
		{Regulation: "EU DSA Art. 28"},
		{Regulation: "GDPR Art. 8"},
		{Regulation: "EU DSA Art. 28"},
	}}

	m := Merge(AuthorityModel, verdict, nil, arbiter, proposer)

	assert.True(t, m.NeedsCompliance)
	assert.Equal(t, "recommender targets EU minors", m.Reasoning)
	assert.Equal(t, []string{"EU DSA Art. 28", "GDPR Art. 8"}, m.Regulations, "claim regulations deduplicate in first-seen order")
	assert.Equal(t, []string{contracts.DecisionSourceModel}, m.MatchedRules)
}

func TestMergeModelAuthorityNilDecisionDefaultsToNo(t *testing.T) {
	m := Merge(AuthorityModel, contracts.Verdict{OK: true}, nil,
		contracts.ArbiterResult{Confidence: 0.5}, contracts.ProposerResult{})

	assert.False(t, m.NeedsCompliance, "degraded arbiter output must not inherit the rules verdict")
}

func TestMergeSignalsAlwaysUnionBothSources(t *testing.T) {
	arbiter := contracts.ArbiterResult{Signals: []string{"ads", "minors"}}

	for _, authority := range []Authority{AuthorityRules, AuthorityModel} {
		m := Merge(authority, contracts.Verdict{}, []string{"minors", "geo_us"}, arbiter, contracts.ProposerResult{})
		assert.Equal(t, []string{"ads", "geo_us", "minors"}, m.Signals, string(authority))
	}
}
