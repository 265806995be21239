// Package ensemble runs the three-stage model analysis: a proposer that
// argues for compliance obligations, an objector that argues against,
// and an arbiter that weighs both. Stages are sequential; each one is
// individually time-boxed and degrades to an empty result rather than
// failing the analysis.
package ensemble

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
	"github.com/Mindburn-Labs/geogov/pkg/textgen"
)

// TimeoutSentinel is substituted for stage output when the generation
// call exceeds its time box, and then parsed like any other output.
const TimeoutSentinel = "TIMEOUT: Analysis timed out"

const (
	DefaultStageTimeout = 10 * time.Second
	DefaultArbiterTopN  = 8
)

// Outcome bundles the three stage results plus citations hydrated
// against the retrieved passages.
type Outcome struct {
	Proposer  contracts.ProposerResult
	Objector  contracts.ObjectorResult
	Arbiter   contracts.ArbiterResult
	Citations []contracts.Citation
}

// Ensemble drives the stages over one Generator. Decide controls whether
// the arbiter is asked for a final yes/no; it must only be set when the
// merger runs model-authoritative.
type Ensemble struct {
	gen          textgen.Generator
	stageTimeout time.Duration
	arbiterTopN  int
	logger       *slog.Logger
}

// Option configures an Ensemble.
type Option func(*Ensemble)

// WithStageTimeout overrides the per-stage time box.
func WithStageTimeout(d time.Duration) Option {
	return func(e *Ensemble) { e.stageTimeout = d }
}

// WithArbiterTopN caps how many items per evidence list reach the
// arbiter prompt.
func WithArbiterTopN(n int) Option {
	return func(e *Ensemble) { e.arbiterTopN = n }
}

// New creates an Ensemble over gen.
func New(gen textgen.Generator, logger *slog.Logger, opts ...Option) *Ensemble {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Ensemble{
		gen:          gen,
		stageTimeout: DefaultStageTimeout,
		arbiterTopN:  DefaultArbiterTopN,
		logger:       logger.With("component", "ensemble"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes proposer, objector, then arbiter for the artifact, using
// passages as prompt context. It returns an error only when ctx itself
// is done; stage-level failures degrade into the Outcome.
func (e *Ensemble) Run(ctx context.Context, artifact contracts.FeatureArtifact, passages []contracts.Passage, decide bool) (Outcome, error) {
	var out Outcome

	raw, err := e.callStage(ctx, "proposer", proposerSystem, proposerPrompt(artifact, passages))
	if err != nil {
		return out, err
	}
	out.Proposer = ParseProposer(raw)

	raw, err = e.callStage(ctx, "objector", objectorSystem, objectorPrompt(artifact, passages))
	if err != nil {
		return out, err
	}
	out.Objector = ParseObjector(raw)

	system := arbiterAnalyzeSystem
	if decide {
		system = arbiterDecideSystem
	}
	raw, err = e.callStage(ctx, "arbiter", system, arbiterPrompt(artifact, out.Proposer, out.Objector, decide, e.arbiterTopN))
	if err != nil {
		return out, err
	}
	out.Arbiter = ParseArbiter(raw)

	out.Citations = HydrateCitations(out.Proposer.Citations, passages)
	return out, nil
}

// callStage time-boxes one generation call. A deadline hit inside the
// box yields the timeout sentinel; other failures yield empty output.
// Cancellation of the parent context is the only hard error.
func (e *Ensemble) callStage(ctx context.Context, stage, system, prompt string) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	raw, err := e.gen.Generate(stageCtx, textgen.Request{System: system, Prompt: prompt})
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e.logger.Warn("stage timed out", "stage", stage, "timeout", e.stageTimeout.String())
		return TimeoutSentinel, nil
	}
	e.logger.Warn("stage generation failed", "stage", stage, "error", err)
	return "", nil
}

// HydrateCitations resolves up to three citation refs against the
// retrieved passages, attaching a snippet of the matched content.
// Unmatched refs keep their source with an empty snippet.
func HydrateCitations(refs []string, passages []contracts.Passage) []contracts.Citation {
	const maxCitations = 3
	const snippetLen = 200

	if len(refs) > maxCitations {
		refs = refs[:maxCitations]
	}
	out := make([]contracts.Citation, 0, len(refs))
	for _, ref := range refs {
		c := contracts.Citation{Source: ref}
		for _, p := range passages {
			if p.SourceRef == ref {
				c.Snippet = truncate(p.Content, snippetLen)
				break
			}
		}
		out = append(out, c)
	}
	return out
}
