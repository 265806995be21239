// Package pipeline composes the full analysis: signal extraction, rules
// evaluation, the model ensemble, authority-resolved merging, and the
// ledger commit. The Analyzer is the one entry point both the API server
// and the CLI drive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
	"github.com/Mindburn-Labs/geogov/pkg/ensemble"
	"github.com/Mindburn-Labs/geogov/pkg/ledger"
	"github.com/Mindburn-Labs/geogov/pkg/merge"
	"github.com/Mindburn-Labs/geogov/pkg/retrieval"
	"github.com/Mindburn-Labs/geogov/pkg/rules"
	"github.com/Mindburn-Labs/geogov/pkg/signals"
)

// Config is the immutable analyzer configuration. Changing the authority
// at runtime means building a new Analyzer from a new Config, never
// mutating a running one.
type Config struct {
	Authority     merge.Authority
	RAGEnabled    bool
	TopK          int
	ArbiterTopN   int
	StageTimeout  time.Duration
	PolicyVersion string
}

// DefaultConfig returns the rules-authoritative baseline.
func DefaultConfig() Config {
	return Config{
		Authority:    merge.AuthorityRules,
		RAGEnabled:   true,
		TopK:         5,
		ArbiterTopN:  ensemble.DefaultArbiterTopN,
		StageTimeout: ensemble.DefaultStageTimeout,
	}
}

// Result is one completed analysis. Committed is false when the decision
// was produced but the ledger write failed; the decision itself is still
// returned to the caller.
type Result struct {
	Decision  contracts.Decision `json:"decision"`
	Committed bool               `json:"committed"`
}

// BatchResult aggregates a bulk run.
type BatchResult struct {
	Results  []Result `json:"results"`
	Failures int      `json:"failures"`
}

// Analyzer wires the pipeline stages. All dependencies are injected;
// nil retriever disables retrieval regardless of config.
type Analyzer struct {
	cfg       Config
	extractor *signals.Extractor
	engine    *rules.Engine
	ensemble  *ensemble.Ensemble
	retriever retrieval.Retriever
	ledger    *ledger.Ledger
	logger    *slog.Logger
}

// New builds an Analyzer.
func New(cfg Config, engine *rules.Engine, ens *ensemble.Ensemble, retriever retrieval.Retriever, led *ledger.Ledger, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		cfg:       cfg,
		extractor: signals.NewExtractor(),
		engine:    engine,
		ensemble:  ens,
		retriever: retriever,
		ledger:    led,
		logger:    logger.With("component", "analyzer"),
	}
}

// Config returns the analyzer's configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze runs the full pipeline for one artifact. The returned error is
// non-nil only when the analysis itself could not run; a failed ledger
// commit degrades to Committed == false.
func (a *Analyzer) Analyze(ctx context.Context, artifact contracts.FeatureArtifact) (Result, error) {
	if artifact.FeatureID == "" {
		return Result{}, fmt.Errorf("pipeline: feature_id must not be empty")
	}

	sigset := a.extractor.Extract(artifact)
	text := signals.CombinedText(artifact)
	verdict := a.engine.Evaluate(sigset, text)

	passages := a.retrieve(ctx, artifact, sigset)

	decide := a.cfg.Authority == merge.AuthorityModel
	outcome, err := a.ensemble.Run(ctx, artifact, passages, decide)
	if err != nil {
		return Result{}, err
	}

	merged := merge.Merge(a.cfg.Authority, verdict, sigset.ToList(), outcome.Arbiter, outcome.Proposer)

	decision := contracts.Decision{
		FeatureID:          artifact.FeatureID,
		NeedsGeoCompliance: merged.NeedsCompliance,
		Reasoning:          merged.Reasoning,
		Regulations:        merged.Regulations,
		Signals:            merged.Signals,
		Citations:          outcome.Citations,
		Confidence:         merged.Confidence,
		MatchedRules:       merged.MatchedRules,
		PolicyVersion:      a.cfg.PolicyVersion,
	}

	committed, err := a.ledger.Commit(ctx, decision)
	if err != nil {
		a.logger.Error("ledger commit failed, returning uncommitted decision",
			"feature_id", artifact.FeatureID, "error", err)
		return Result{Decision: decision, Committed: false}, nil
	}

	a.logger.Info("analysis complete",
		"feature_id", artifact.FeatureID,
		"needs_geo_compliance", committed.NeedsGeoCompliance,
		"matched_rules", committed.MatchedRules,
		"hash", committed.Hash)
	return Result{Decision: committed, Committed: true}, nil
}

// retrieve fetches prompt context. Retrieval failures degrade to an
// empty passage list.
func (a *Analyzer) retrieve(ctx context.Context, artifact contracts.FeatureArtifact, sigset contracts.SignalSet) []contracts.Passage {
	if !a.cfg.RAGEnabled || a.retriever == nil {
		return nil
	}
	query := artifact.Title + " " + artifact.Description
	if len(sigset.Hints) > 0 {
		query += " " + sigset.Hints[0]
	}
	passages, err := a.retriever.Retrieve(ctx, query, a.cfg.TopK)
	if err != nil {
		a.logger.Warn("retrieval failed, proceeding without context",
			"feature_id", artifact.FeatureID, "error", err)
		return nil
	}
	return passages
}

// AnalyzeBatch runs every artifact with per-item isolation: one failing
// analysis is counted and skipped, the rest proceed.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, artifacts []contracts.FeatureArtifact) (BatchResult, error) {
	var batch BatchResult
	for _, artifact := range artifacts {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := a.Analyze(ctx, artifact)
		if err != nil {
			a.logger.Warn("batch item failed", "feature_id", artifact.FeatureID, "error", err)
			batch.Failures++
			continue
		}
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}
