// Package rules implements the deterministic rules engine: declarative
// compliance rules loaded from an external policy document and evaluated
// in document order with first-positive-match short-circuit semantics.
package rules

// WhenAny is the disjunctive condition block of a rule: the block matches
// when ANY listed tag is declared on the artifact OR ANY listed literal
// appears in the evaluated text.
type WhenAny struct {
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Text []string `yaml:"text,omitempty" json:"text,omitempty"`
}

// Rule is one declarative policy record. Condition kinds combine with AND
// semantics across kinds and OR semantics within a kind:
//
//   - WhenAny / WhenAnyText: any listed tag or literal matches
//   - WhenAllText: every listed literal appears in the text
//   - AndText: every listed literal appears in the text (secondary all-of)
//
// A rule declaring neither WhenAny nor WhenAnyText passes the any-of gate
// unconditionally. Expression is an optional CEL guard ANDed with the
// declarative conditions; documents that omit it evaluate exactly as the
// four declarative kinds dictate.
type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Verdict     bool     `yaml:"verdict,omitempty" json:"verdict,omitempty"`
	WhenAny     *WhenAny `yaml:"when_any,omitempty" json:"when_any,omitempty"`
	WhenAnyText []string `yaml:"when_any_text,omitempty" json:"when_any_text,omitempty"`
	WhenAllText []string `yaml:"when_all_text,omitempty" json:"when_all_text,omitempty"`
	AndText     []string `yaml:"and_text,omitempty" json:"and_text,omitempty"`
	Expression  string   `yaml:"expression,omitempty" json:"expression,omitempty"`
	Regulations []string `yaml:"regulations,omitempty" json:"regulations,omitempty"`
	Reason      string   `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// PolicyDocument is the on-disk policy shape. Rules evaluate in declared
// order; that ordering silently determines which regulation fires when
// several rules could apply, so loaders must preserve it.
type PolicyDocument struct {
	Version          string `yaml:"version,omitempty" json:"version,omitempty"`
	MinEngineVersion string `yaml:"min_engine_version,omitempty" json:"min_engine_version,omitempty"`
	Rules            []Rule `yaml:"rules" json:"rules"`
}

// PolicyStore loads the ordered rule list. Implementations return an
// empty list (not an error) when the backing document is absent or
// invalid, so a broken policy never fails an analysis.
type PolicyStore interface {
	Load() ([]Rule, error)
}
