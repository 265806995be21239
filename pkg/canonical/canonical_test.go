package canonical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

func sampleDecision() contracts.Decision {
	return contracts.Decision{
		FeatureID:          "feat-1",
		NeedsGeoCompliance: true,
		Reasoning:          "Minor protection obligations apply",
		Regulations:        []string{"EU DSA Art. 28"},
		Signals:            []string{"geo_eu", "minors"},
		Citations:          []contracts.Citation{{Source: "dsa-28", Snippet: "Article 28"}},
		Confidence:         0.9,
		MatchedRules:       []string{"eu-minors"},
		Timestamp:          "2026-08-01T12:00:00Z",
		PolicyVersion:      "2026.08",
	}
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	out, err := Canonicalize(map[string]int{"zebra": 1, "alpha": 2, "mid": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zebra":1}`, string(out))
}

func TestHashBytesFormat(t *testing.T) {
	h := HashBytes([]byte("content"))
	assert.True(t, strings.HasPrefix(h, HashPrefix))
	assert.Len(t, h, len(HashPrefix)+64)
}

func TestDecisionHashIsStable(t *testing.T) {
	a, err := DecisionHash(sampleDecision())
	require.NoError(t, err)
	b, err := DecisionHash(sampleDecision())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecisionHashIgnoresHashField(t *testing.T) {
	d := sampleDecision()
	base, err := DecisionHash(d)
	require.NoError(t, err)

	d.Hash = "sha256-previously-stored"
	again, err := DecisionHash(d)
	require.NoError(t, err)
	assert.Equal(t, base, again)
}

func TestDecisionHashSensitiveToContent(t *testing.T) {
	base, err := DecisionHash(sampleDecision())
	require.NoError(t, err)

	mutations := []func(*contracts.Decision){
		func(d *contracts.Decision) { d.NeedsGeoCompliance = false },
		func(d *contracts.Decision) { d.Reasoning = "different reasoning" },
		func(d *contracts.Decision) { d.Regulations = []string{"GDPR"} },
		func(d *contracts.Decision) { d.Confidence = 0.1 },
		func(d *contracts.Decision) { d.Timestamp = "2026-08-01T12:00:01Z" },
		func(d *contracts.Decision) { d.PolicyVersion = "2026.09" },
	}
	for i, mutate := range mutations {
		d := sampleDecision()
		mutate(&d)
		h, err := DecisionHash(d)
		require.NoError(t, err)
		assert.NotEqual(t, base, h, "mutation %d must change the hash", i)
	}
}
