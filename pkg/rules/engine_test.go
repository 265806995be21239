package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

func signalsWithTags(tags ...string) contracts.SignalSet {
	s := contracts.NewSignalSet()
	for _, t := range tags {
		s.Tags[t] = struct{}{}
	}
	return s
}

func mustEngine(t *testing.T, rules []Rule) *Engine {
	t.Helper()
	e, err := NewEngine(rules, nil)
	require.NoError(t, err)
	return e
}

func TestEvaluateFirstPositiveMatchShortCircuits(t *testing.T) {
	e := mustEngine(t, []Rule{
		{
			ID:          "eu-minors",
			Verdict:     true,
			WhenAny:     &WhenAny{Tags: []string{"minors"}, Text: []string{"under 18"}},
			Regulations: []string{"EU DSA Art. 28"},
			Reason:      "Minor protection obligations apply",
		},
		{
			ID:          "us-ads",
			Verdict:     true,
			WhenAnyText: []string{"targeted advertising"},
			Regulations: []string{"COPPA"},
		},
	})

	v := e.Evaluate(signalsWithTags(), "Personalized feed with targeted advertising for users UNDER 18")

	assert.True(t, v.OK)
	assert.Equal(t, []string{"eu-minors"}, v.MatchedIDs)
	assert.Equal(t, []string{"EU DSA Art. 28"}, v.Regulations)
	assert.Equal(t, "Minor protection obligations apply", v.Reason)
}

func TestEvaluateMatchesByDeclaredTag(t *testing.T) {
	e := mustEngine(t, []Rule{
		{
			ID:          "eu-minors",
			Verdict:     true,
			WhenAny:     &WhenAny{Tags: []string{"minors"}},
			Regulations: []string{"EU DSA Art. 28"},
		},
	})

	v := e.Evaluate(signalsWithTags("minors"), "nothing textual here")

	assert.True(t, v.OK)
	assert.Equal(t, []string{"eu-minors"}, v.MatchedIDs)
}

func TestEvaluateTextMatchingIsCaseInsensitiveSubstring(t *testing.T) {
	e := mustEngine(t, []Rule{
		{ID: "geo", Verdict: true, WhenAnyText: []string{"California"}},
	})

	v := e.Evaluate(signalsWithTags(), "rollout restricted to CALIFORNIA residents")
	assert.True(t, v.OK)
}

func TestEvaluateAllOfConditionsGateTheMatch(t *testing.T) {
	rules := []Rule{
		{
			ID:          "minors-ads",
			Verdict:     true,
			WhenAny:     &WhenAny{Tags: []string{"minors"}},
			WhenAllText: []string{"advertising"},
			AndText:     []string{"europe"},
		},
	}
	e := mustEngine(t, rules)

	v := e.Evaluate(signalsWithTags("minors"), "advertising feature")
	assert.False(t, v.OK, "missing and_text term must not match")

	v = e.Evaluate(signalsWithTags("minors"), "advertising feature launching in Europe")
	assert.True(t, v.OK)
}

func TestEvaluateRuleWithoutAnyClauseMatchesUnconditionally(t *testing.T) {
	e := mustEngine(t, []Rule{
		{ID: "audit-all", Verdict: false},
		{ID: "catch", Verdict: true, WhenAllText: []string{"safety"}},
	})

	v := e.Evaluate(signalsWithTags(), "routine safety review")
	assert.True(t, v.OK)
	assert.Equal(t, []string{"catch"}, v.MatchedIDs)
}

func TestEvaluateNoMatchCollectsNonVerdictRules(t *testing.T) {
	e := mustEngine(t, []Rule{
		{ID: "observe-a", Verdict: false, WhenAnyText: []string{"feed"}},
		{ID: "observe-b", Verdict: false, WhenAnyText: []string{"ranking"}},
		{ID: "never", Verdict: true, WhenAnyText: []string{"csam"}},
	})

	v := e.Evaluate(signalsWithTags(), "recommendation feed with ranking tweaks")

	assert.False(t, v.OK)
	assert.Equal(t, []string{"observe-a", "observe-b"}, v.MatchedIDs)
	assert.Empty(t, v.Regulations)
	assert.Equal(t, NoMatchReason, v.Reason)
}

func TestEvaluateEmptyRuleSetYieldsNegativeVerdict(t *testing.T) {
	e := mustEngine(t, nil)

	v := e.Evaluate(signalsWithTags("minors"), "age gate for teens in Florida")

	assert.False(t, v.OK)
	assert.Empty(t, v.MatchedIDs)
	assert.Equal(t, NoMatchReason, v.Reason)
}

func TestEvaluateDefaultReasonNamesTheRule(t *testing.T) {
	e := mustEngine(t, []Rule{
		{ID: "utah-curfew", Verdict: true, WhenAnyText: []string{"utah"}},
	})

	v := e.Evaluate(signalsWithTags(), "Utah login curfew")
	assert.Equal(t, "Rule utah-curfew triggered", v.Reason)
}

func TestEvaluateExpressionGuardAndsWithDeclarativeConditions(t *testing.T) {
	e := mustEngine(t, []Rule{
		{
			ID:          "minors-eu-only",
			Verdict:     true,
			WhenAny:     &WhenAny{Tags: []string{"minors"}},
			Expression:  `"geo_eu" in signals`,
			Regulations: []string{"EU DSA"},
		},
	})

	s := signalsWithTags("minors")
	v := e.Evaluate(s, "age gate")
	assert.False(t, v.OK, "guard must deny without the geo signal")

	s.TextSignals["geo_eu"] = struct{}{}
	v = e.Evaluate(s, "age gate")
	assert.True(t, v.OK)
}

func TestEvaluateBrokenExpressionDisablesOnlyThatRule(t *testing.T) {
	e := mustEngine(t, []Rule{
		{ID: "broken", Verdict: true, Expression: `this is not cel (`},
		{ID: "working", Verdict: true, WhenAnyText: []string{"takedown"}},
	})

	v := e.Evaluate(signalsWithTags(), "takedown appeal flow")
	assert.True(t, v.OK)
	assert.Equal(t, []string{"working"}, v.MatchedIDs)
}
