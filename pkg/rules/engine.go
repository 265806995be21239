package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

// NoMatchReason is the verdict reason when no rule fires positively.
const NoMatchReason = "No compliance requirements detected"

// Engine evaluates an ordered rule list against extracted signals and
// artifact text. Evaluation is deterministic: the same rules, signals,
// and text always produce the same verdict.
type Engine struct {
	rules    []Rule
	programs map[string]cel.Program
	logger   *slog.Logger
}

// NewEngine builds an engine over rules, precompiling any CEL expression
// guards. A rule whose expression fails to compile is retained but can
// never fire; the defect is logged once at construction.
func NewEngine(ruleList []Rule, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		rules:    ruleList,
		programs: make(map[string]cel.Program),
		logger:   logger.With("component", "rules_engine"),
	}

	var env *cel.Env
	for _, r := range ruleList {
		if r.Expression == "" {
			continue
		}
		if env == nil {
			var err error
			env, err = cel.NewEnv(
				cel.Variable("tags", cel.ListType(cel.StringType)),
				cel.Variable("signals", cel.ListType(cel.StringType)),
				cel.Variable("text", cel.StringType),
			)
			if err != nil {
				return nil, fmt.Errorf("rules: create cel environment: %w", err)
			}
		}
		ast, iss := env.Compile(r.Expression)
		if iss != nil && iss.Err() != nil {
			e.logger.Warn("rule expression rejected, rule disabled",
				"rule", r.ID, "error", iss.Err())
			continue
		}
		prg, err := env.Program(ast)
		if err != nil {
			e.logger.Warn("rule expression rejected, rule disabled",
				"rule", r.ID, "error", err)
			continue
		}
		e.programs[r.ID] = prg
	}
	return e, nil
}

// Rules returns the engine's rule list in evaluation order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate walks the rules in order. The first rule that matches with
// verdict true short-circuits into a positive verdict carrying only that
// rule's ID, regulations, and reason. Matching rules with verdict false
// accumulate into MatchedIDs of the final negative verdict.
func (e *Engine) Evaluate(signals contracts.SignalSet, text string) contracts.Verdict {
	lowered := strings.ToLower(text)

	var matched []string
	for _, r := range e.rules {
		if !e.ruleMatches(r, signals, lowered) {
			continue
		}
		matched = append(matched, r.ID)
		if r.Verdict {
			return contracts.Verdict{
				OK:          true,
				MatchedIDs:  []string{r.ID},
				Regulations: append([]string{}, r.Regulations...),
				Reason:      ruleReason(r),
			}
		}
	}

	return contracts.Verdict{
		OK:          false,
		MatchedIDs:  matched,
		Regulations: []string{},
		Reason:      NoMatchReason,
	}
}

func (e *Engine) ruleMatches(r Rule, signals contracts.SignalSet, lowered string) bool {
	anyMatch := false
	if r.WhenAny != nil {
		if anyTag(signals, r.WhenAny.Tags) || anyText(lowered, r.WhenAny.Text) {
			anyMatch = true
		}
	}
	if len(r.WhenAnyText) > 0 && anyText(lowered, r.WhenAnyText) {
		anyMatch = true
	}
	noAnyClause := r.WhenAny == nil && len(r.WhenAnyText) == 0

	if !(anyMatch || noAnyClause) {
		return false
	}
	if !allText(lowered, r.WhenAllText) {
		return false
	}
	if !allText(lowered, r.AndText) {
		return false
	}
	if r.Expression != "" && !e.expressionAllows(r, signals, lowered) {
		return false
	}
	return true
}

// expressionAllows evaluates a rule's CEL guard. Uncompiled or erroring
// expressions deny the rule rather than the whole analysis.
func (e *Engine) expressionAllows(r Rule, signals contracts.SignalSet, lowered string) bool {
	prg, ok := e.programs[r.ID]
	if !ok {
		return false
	}
	tags := make([]string, 0, len(signals.Tags))
	for t := range signals.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	out, _, err := prg.Eval(map[string]any{
		"tags":    tags,
		"signals": signals.ToList(),
		"text":    lowered,
	})
	if err != nil {
		e.logger.Warn("rule expression evaluation failed", "rule", r.ID, "error", err)
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}

func ruleReason(r Rule) string {
	if r.Reason != "" {
		return r.Reason
	}
	return fmt.Sprintf("Rule %s triggered", r.ID)
}

func anyTag(signals contracts.SignalSet, tags []string) bool {
	for _, t := range tags {
		if signals.HasTag(t) {
			return true
		}
	}
	return false
}

func anyText(lowered string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lowered, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// allText reports whether every term appears; an empty list passes.
func allText(lowered string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(lowered, strings.ToLower(t)) {
			return false
		}
	}
	return true
}
