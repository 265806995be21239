package contracts

// Citation is a source reference with a supporting snippet, hydrated from
// retrieved passages when the ensemble cites them.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// Verdict is the deterministic Rules Engine outcome. Produced once per
// evaluation and never mutated.
type Verdict struct {
	OK          bool     `json:"ok"`
	MatchedIDs  []string `json:"matched_ids"`
	Regulations []string `json:"regulations"`
	Reason      string   `json:"reason"`
}

// Decision is the final output of one analysis. It is created exactly once
// and becomes immutable after its hash is computed. The Hash field is
// populated only by the evidence ledger; upstream stages must leave it
// empty so the canonical form is stable.
type Decision struct {
	FeatureID          string     `json:"feature_id"`
	NeedsGeoCompliance bool       `json:"needs_geo_compliance"`
	Reasoning          string     `json:"reasoning"`
	Regulations        []string   `json:"regulations"`
	Signals            []string   `json:"signals"`
	Citations          []Citation `json:"citations"`
	Confidence         float64    `json:"confidence"`
	MatchedRules       []string   `json:"matched_rules"`
	Hash               string     `json:"hash"`
	Timestamp          string     `json:"ts"`
	PolicyVersion      string     `json:"policy_version"`
}

// Receipt is a Decision committed to the evidence ledger, persisted as one
// JSON line. Receipts are append-only: never updated, never deleted.
type Receipt = Decision

// DecisionSourceModel is the matched-rules sentinel marking a Decision
// whose final boolean came from the arbiter rather than the rules engine.
const DecisionSourceModel = "LLM_DECISION"
