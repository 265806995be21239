package ensemble

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

const (
	proposerSystem       = "You are a legal compliance expert analyzing software features for geographical regulatory compliance. Your job is to find compliance signals and identify relevant regulations based on legal documents provided as context."
	objectorSystem       = "You are a legal compliance expert. Your job is to find counter-arguments and identify missing compliance signals that might suggest a feature does NOT require geographical regulatory compliance."
	arbiterDecideSystem  = "You are a senior legal compliance expert making final decisions on whether software features require geographical regulatory compliance. You must weigh evidence for and against compliance requirements."
	arbiterAnalyzeSystem = "You are a legal compliance expert. Merge findings from compliance analysis. Normalize signals and provide confidence, but do NOT make the final YES/NO decision - that will be handled by a separate rules engine."
)

func artifactBlock(a contracts.FeatureArtifact) string {
	tags := "none"
	if len(a.Tags) > 0 {
		tags = strings.Join(a.Tags, ", ")
	}
	block := fmt.Sprintf("**Feature:** %s\n**Description:** %s\n**Tags:** %s", a.Title, a.Description, tags)
	if len(a.Docs) > 0 {
		block += "\n**Docs:** " + strings.Join(a.Docs, ", ")
	}
	return block
}

func contextBlock(passages []contracts.Passage) string {
	if len(passages) == 0 {
		return "No legal context retrieved."
	}
	var b strings.Builder
	b.WriteString("**Legal context:**\n")
	for _, p := range passages {
		fmt.Fprintf(&b, "[%s] %s\n", p.SourceRef, p.Content)
	}
	return b.String()
}

func proposerPrompt(a contracts.FeatureArtifact, passages []contracts.Passage) string {
	return fmt.Sprintf(`Analyze this software feature for geographical regulatory compliance:

%s

%s

Based on the legal context provided, identify:
1. Compliance signals (keywords/concepts that suggest regulatory requirements)
2. Specific regulations that may apply
3. Why each regulation applies
4. Citations to specific sources that support your analysis

Return your analysis as JSON with this structure:
{
  "signals": ["list of compliance signals found"],
  "claims": [
    {
      "regulation": "regulation name",
      "why": "explanation why this regulation applies",
      "citations": ["source reference"]
    }
  ],
  "citations": ["list of all source references used"]
}`, artifactBlock(a), contextBlock(passages))
}

func objectorPrompt(a contracts.FeatureArtifact, passages []contracts.Passage) string {
	return fmt.Sprintf(`Analyze this software feature for potential exemptions or counter-arguments to geographical compliance:

%s

%s

Find counter-arguments and missing signals that might suggest this feature does NOT require geographical compliance:
1. Counter-points (arguments against compliance requirements)
2. Missing signals (compliance indicators that are notably absent)
3. Citations supporting your counter-analysis

Return as JSON:
{
  "counter_points": ["list of arguments against compliance requirements"],
  "missing_signals": ["list of compliance signals that are notably missing"],
  "citations": ["list of source references"]
}`, artifactBlock(a), contextBlock(passages))
}

func arbiterPrompt(a contracts.FeatureArtifact, proposer contracts.ProposerResult, objector contracts.ObjectorResult, decide bool, topN int) string {
	instructions := `**Instructions:**
1. Synthesize all evidence for and against
2. Combine all relevant signals found
3. Assign a confidence score (0.0-1.0) for the analysis quality
4. Provide clear reasoning notes
5. DO NOT make the final compliance decision

Return as JSON:
{
  "signals": ["combined list of all relevant signals"],
  "notes": "detailed reasoning and analysis",
  "confidence": 0.85
}`
	if decide {
		instructions = `**Instructions:**
1. Synthesize all evidence for and against
2. Make a final determination on compliance requirements
3. Assign a confidence score (0.0-1.0)
4. Combine all relevant signals found
5. Provide clear reasoning

Return as JSON:
{
  "signals": ["combined list of all relevant signals"],
  "notes": "detailed reasoning for your decision",
  "confidence": 0.85,
  "requires_compliance": true
}`
	}

	return fmt.Sprintf(`Analyze this software feature for geographical regulatory compliance:

%s

**Evidence FOR compliance:**
- Signals found: %s
- Regulatory claims: %s

**Evidence AGAINST compliance:**
- Counter-points: %s
- Missing signals: %s

%s`,
		artifactBlock(a),
		strings.Join(condense(proposer.Signals, topN), ", "),
		claimsSummary(condenseClaims(proposer.Claims, topN)),
		strings.Join(condense(objector.CounterPoints, topN), ", "),
		strings.Join(condense(objector.MissingSignals, topN), ", "),
		instructions)
}

// condense caps evidence lists so the arbiter prompt stays bounded no
// matter how verbose the earlier stages were.
func condense(items []string, topN int) []string {
	if topN > 0 && len(items) > topN {
		return items[:topN]
	}
	return items
}

func condenseClaims(claims []contracts.Claim, topN int) []contracts.Claim {
	if topN > 0 && len(claims) > topN {
		return claims[:topN]
	}
	return claims
}

func claimsSummary(claims []contracts.Claim) string {
	if len(claims) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(claims))
	for _, c := range claims {
		if c.Why != "" && c.Why != c.Regulation {
			parts = append(parts, fmt.Sprintf("%s (%s)", c.Regulation, c.Why))
		} else {
			parts = append(parts, c.Regulation)
		}
	}
	return strings.Join(parts, "; ")
}
