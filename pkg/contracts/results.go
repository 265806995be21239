package contracts

// ParseStatus tags an ensemble stage result as either cleanly parsed or a
// raw fallback. Parsing a stage's output never fails hard: when the text
// matches neither the JSON fast path nor the section grammar, the result
// carries empty lists and the untouched model text under Raw.
type ParseStatus string

const (
	ParseOK       ParseStatus = "parsed"
	ParseFallback ParseStatus = "raw_fallback"
)

// Claim is one regulatory claim made by the proposer stage.
type Claim struct {
	Regulation string   `json:"regulation"`
	Why        string   `json:"why,omitempty"`
	Citations  []string `json:"citations,omitempty"`
}

// ProposerResult is the parsed output of the proposer ("finder") stage:
// the evidence FOR a compliance obligation.
type ProposerResult struct {
	Signals   []string    `json:"signals"`
	Claims    []Claim     `json:"claims"`
	Citations []string    `json:"citations"`
	Status    ParseStatus `json:"status"`
	Raw       string      `json:"raw,omitempty"`
}

// ObjectorResult is the parsed output of the objector ("counter") stage:
// the evidence AGAINST a compliance obligation.
type ObjectorResult struct {
	CounterPoints  []string    `json:"counter_points"`
	MissingSignals []string    `json:"missing_signals"`
	Citations      []string    `json:"citations"`
	Status         ParseStatus `json:"status"`
	Raw            string      `json:"raw,omitempty"`
}

// ArbiterResult is the parsed output of the arbiter ("judge") stage.
// Decision is non-nil only when the stage was configured to make the
// final call and the model emitted an explicit boolean.
type ArbiterResult struct {
	Signals    []string    `json:"signals"`
	Notes      string      `json:"notes"`
	Confidence float64     `json:"confidence"`
	Decision   *bool       `json:"decision,omitempty"`
	Status     ParseStatus `json:"status"`
	Raw        string      `json:"raw,omitempty"`
}
