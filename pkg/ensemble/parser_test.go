package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

func TestParseProposerJSON(t *testing.T) {
	raw := `{
  "signals": ["minors", "geo_eu"],
  "claims": [{"regulation": "EU DSA Art. 28", "why": "minor-facing recommender", "citations": ["dsa-28"]}],
  "citations": ["dsa-28", "gdpr-8"]
}`
	out := ParseProposer(raw)

	assert.Equal(t, contracts.ParseOK, out.Status)
	assert.Equal(t, []string{"minors", "geo_eu"}, out.Signals)
	require.Len(t, out.Claims, 1)
	assert.Equal(t, "EU DSA Art. 28", out.Claims[0].Regulation)
	assert.Equal(t, []string{"dsa-28", "gdpr-8"}, out.Citations)
}

func TestParseProposerSectionedText(t *testing.T) {
	raw := `SIGNALS:
- minors
- geo_eu
CLAIMS:
- EU DSA applies to recommender systems
CITATIONS:
- dsa-28`
	out := ParseProposer(raw)

	assert.Equal(t, []string{"minors", "geo_eu"}, out.Signals)
	require.Len(t, out.Claims, 1)
	assert.Equal(t, "EU DSA applies to recommender systems", out.Claims[0].Regulation)
	assert.Equal(t, []string{"dsa-28"}, out.Citations)
}

func TestParseProposerAcceptsProseLinesUnderSection(t *testing.T) {
	raw := "SIGNALS:\nage verification requirement\nparental consent flow"
	out := ParseProposer(raw)
	assert.Equal(t, []string{"age verification requirement", "parental consent flow"}, out.Signals)
}

func TestParseProposerMalformedJSONDegrades(t *testing.T) {
	raw := `{"signals": [truncated`
	out := ParseProposer(raw)

	assert.Equal(t, contracts.ParseFallback, out.Status)
	assert.Empty(t, out.Signals)
	assert.Equal(t, raw, out.Raw)
}

func TestParseObjectorSectionedText(t *testing.T) {
	raw := `COUNTER-POINTS:
- feature is a pure UI change
MISSING:
- no age data collected
SOURCES:
- internal-faq`
	out := ParseObjector(raw)

	assert.Equal(t, []string{"feature is a pure UI change"}, out.CounterPoints)
	assert.Equal(t, []string{"no age data collected"}, out.MissingSignals)
	assert.Equal(t, []string{"internal-faq"}, out.Citations)
}

func TestParseObjectorJSON(t *testing.T) {
	raw := `{"counter_points": ["no PII involved"], "missing_signals": ["age gate absent"], "citations": []}`
	out := ParseObjector(raw)

	assert.Equal(t, []string{"no PII involved"}, out.CounterPoints)
	assert.Equal(t, []string{"age gate absent"}, out.MissingSignals)
}

func TestParseArbiterGrades(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"CONFIDENCE: HIGH", 0.9},
		{"Confidence: medium", 0.6},
		{"confidence is LOW here", 0.3},
		{"no grade mentioned", 0.5},
	}
	for _, tc := range cases {
		out := ParseArbiter(tc.raw)
		assert.Equal(t, tc.want, out.Confidence, tc.raw)
	}
}

func TestParseArbiterDecisionAndReason(t *testing.T) {
	raw := `DECISION: YES
CONFIDENCE: HIGH
REASON: recommender targets minors in the EU`
	out := ParseArbiter(raw)

	require.NotNil(t, out.Decision)
	assert.True(t, *out.Decision)
	assert.Equal(t, 0.9, out.Confidence)
	assert.Equal(t, "recommender targets minors in the EU", out.Notes)
}

func TestParseArbiterNegativeDecision(t *testing.T) {
	out := ParseArbiter("DECISION: NO\nREASON: purely cosmetic change")
	require.NotNil(t, out.Decision)
	assert.False(t, *out.Decision)
}

func TestParseArbiterNoDecisionLine(t *testing.T) {
	out := ParseArbiter("CONFIDENCE: MEDIUM\nREASON: ambiguous evidence")
	assert.Nil(t, out.Decision)
}

func TestParseArbiterJSON(t *testing.T) {
	raw := `{"signals": ["minors"], "notes": "strong evidence", "confidence": 0.85, "requires_compliance": true}`
	out := ParseArbiter(raw)

	assert.Equal(t, []string{"minors"}, out.Signals)
	assert.Equal(t, "strong evidence", out.Notes)
	assert.Equal(t, 0.85, out.Confidence)
	require.NotNil(t, out.Decision)
	assert.True(t, *out.Decision)
}

func TestParseArbiterJSONWithoutDecisionKey(t *testing.T) {
	out := ParseArbiter(`{"notes": "analysis only", "confidence": 0.6}`)
	assert.Nil(t, out.Decision)
	assert.Equal(t, 0.6, out.Confidence)
}

func TestParseArbiterNotesFallBackToRawPrefix(t *testing.T) {
	out := ParseArbiter("just some unstructured musing about the feature")
	assert.Equal(t, "just some unstructured musing about the feature", out.Notes)
	assert.Equal(t, 0.5, out.Confidence)
}

func TestParseTimeoutSentinelDegradesCleanly(t *testing.T) {
	p := ParseProposer(TimeoutSentinel)
	assert.Empty(t, p.Signals)
	assert.Empty(t, p.Claims)

	a := ParseArbiter(TimeoutSentinel)
	assert.Nil(t, a.Decision)
	assert.Equal(t, 0.5, a.Confidence)
}
