package ensemble

import (
	"encoding/json"
	"strings"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

// Stage output parsing is two-tier. Output whose first non-space byte is
// '{' takes the JSON path; everything else goes through a line scanner
// that classifies section headers by keyword and collects the lines
// below them. Parsing never fails: unusable output degrades to empty
// lists with the raw text preserved for the receipt.

// ParseProposer extracts signals, regulation claims, and citation refs.
func ParseProposer(raw string) contracts.ProposerResult {
	out := contracts.ProposerResult{Status: contracts.ParseOK, Raw: raw}

	if isJSONObject(raw) {
		var parsed struct {
			Signals []string `json:"signals"`
			Claims  []struct {
				Regulation string   `json:"regulation"`
				Why        string   `json:"why"`
				Citations  []string `json:"citations"`
			} `json:"claims"`
			Citations []string `json:"citations"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			out.Status = contracts.ParseFallback
			return out
		}
		out.Signals = parsed.Signals
		for _, c := range parsed.Claims {
			out.Claims = append(out.Claims, contracts.Claim{
				Regulation: c.Regulation,
				Why:        c.Why,
				Citations:  c.Citations,
			})
		}
		out.Citations = parsed.Citations
		return out
	}

	section := ""
	scanLines(raw, func(line, upper string) {
		switch {
		case strings.Contains(upper, "SIGNAL"):
			section = "signals"
		case strings.Contains(upper, "CLAIM"):
			section = "claims"
		case strings.Contains(upper, "CITATION"):
			section = "citations"
		default:
			content, ok := itemContent(line)
			if !ok {
				return
			}
			switch section {
			case "signals":
				out.Signals = append(out.Signals, content)
			case "claims":
				out.Claims = append(out.Claims, contracts.Claim{Regulation: content, Why: content})
			case "citations":
				out.Citations = append(out.Citations, content)
			}
		}
	})
	return out
}

// ParseObjector extracts counter-points, missing signals, and citations.
func ParseObjector(raw string) contracts.ObjectorResult {
	out := contracts.ObjectorResult{Status: contracts.ParseOK, Raw: raw}

	if isJSONObject(raw) {
		var parsed struct {
			CounterPoints  []string `json:"counter_points"`
			MissingSignals []string `json:"missing_signals"`
			Citations      []string `json:"citations"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			out.Status = contracts.ParseFallback
			return out
		}
		out.CounterPoints = parsed.CounterPoints
		out.MissingSignals = parsed.MissingSignals
		out.Citations = parsed.Citations
		return out
	}

	section := ""
	scanLines(raw, func(line, upper string) {
		switch {
		case strings.Contains(upper, "REASON") || strings.Contains(upper, "COUNTER"):
			section = "counter"
		case strings.Contains(upper, "MISSING") || strings.Contains(upper, "SIGNAL"):
			section = "missing"
		case strings.Contains(upper, "CITATION") || strings.Contains(upper, "SOURCE"):
			section = "citations"
		default:
			content, ok := itemContent(line)
			if !ok {
				return
			}
			switch section {
			case "counter":
				out.CounterPoints = append(out.CounterPoints, content)
			case "missing":
				out.MissingSignals = append(out.MissingSignals, content)
			case "citations":
				out.Citations = append(out.Citations, content)
			}
		}
	})
	return out
}

// ParseArbiter extracts the confidence grade, optional yes/no decision,
// and reasoning notes. Confidence defaults to 0.5 when no grade appears.
func ParseArbiter(raw string) contracts.ArbiterResult {
	out := contracts.ArbiterResult{Status: contracts.ParseOK, Confidence: 0.5, Raw: raw}

	if isJSONObject(raw) {
		var parsed struct {
			Signals            []string `json:"signals"`
			Notes              string   `json:"notes"`
			Confidence         *float64 `json:"confidence"`
			RequiresCompliance *bool    `json:"requires_compliance"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			out.Status = contracts.ParseFallback
			out.Notes = truncate(raw, 200)
			return out
		}
		out.Signals = parsed.Signals
		out.Notes = parsed.Notes
		if parsed.Confidence != nil {
			out.Confidence = *parsed.Confidence
		}
		out.Decision = parsed.RequiresCompliance
		if out.Notes == "" {
			out.Notes = truncate(raw, 200)
		}
		return out
	}

	scanLines(raw, func(line, upper string) {
		switch {
		case strings.Contains(upper, "CONFIDENCE"):
			switch {
			case strings.Contains(upper, "HIGH"):
				out.Confidence = 0.9
			case strings.Contains(upper, "MEDIUM"):
				out.Confidence = 0.6
			case strings.Contains(upper, "LOW"):
				out.Confidence = 0.3
			}
		case strings.Contains(upper, "DECISION"):
			if strings.Contains(upper, "YES") {
				v := true
				out.Decision = &v
			} else if strings.Contains(upper, "NO") {
				v := false
				out.Decision = &v
			}
		case strings.Contains(upper, "REASON"):
			if _, after, found := strings.Cut(line, ":"); found {
				out.Notes = strings.TrimSpace(after)
			}
		}
	})

	if out.Notes == "" {
		out.Notes = truncate(raw, 200)
	}
	return out
}

func isJSONObject(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "{")
}

func scanLines(raw string, fn func(line, upper string)) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fn(line, strings.ToUpper(line))
	}
}

// itemContent accepts bullet lines and, leniently, any line longer than
// two characters, so prose-style model output still yields items.
func itemContent(line string) (string, bool) {
	for _, prefix := range []string{"-", "•", "*"} {
		if strings.HasPrefix(line, prefix) {
			content := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			return content, content != ""
		}
	}
	if len(line) > 2 {
		return line, true
	}
	return "", false
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
