package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
	"github.com/Mindburn-Labs/geogov/pkg/ledger"
	"github.com/Mindburn-Labs/geogov/pkg/merge"
	"github.com/Mindburn-Labs/geogov/pkg/observability"
	"github.com/Mindburn-Labs/geogov/pkg/pipeline"
	"github.com/Mindburn-Labs/geogov/pkg/rules"
)

const maxBodyBytes = 1 << 20

// AnalyzerFactory builds a fresh Analyzer for a configuration. The
// server calls it once at startup and again on every authority change;
// the running analyzer is never mutated in place.
type AnalyzerFactory func(cfg pipeline.Config) *pipeline.Analyzer

// Server serves the screening API: analysis, bulk analysis, evidence
// export, policy authority control, and health.
type Server struct {
	mu       sync.RWMutex
	analyzer *pipeline.Analyzer
	cfg      pipeline.Config

	build     AnalyzerFactory
	store     *rules.FileStore
	ledger    *ledger.Ledger
	exporter  *ledger.Exporter
	telemetry *observability.Provider
	logger    *slog.Logger
}

// NewServer builds a Server and its initial analyzer.
func NewServer(cfg pipeline.Config, build AnalyzerFactory, store *rules.FileStore, led *ledger.Ledger, exporter *ledger.Exporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		analyzer: build(cfg),
		cfg:      cfg,
		build:    build,
		store:    store,
		ledger:   led,
		exporter: exporter,
		logger:   logger.With("component", "api"),
	}
}

// WithTelemetry attaches an observability provider. A nil provider
// leaves all recording calls as no-ops.
func (s *Server) WithTelemetry(p *observability.Provider) *Server {
	s.telemetry = p
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler(limiter *GlobalRateLimiter, validator *JWTValidator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/bulk_analyze", s.handleBulkAnalyze)
	mux.HandleFunc("/api/evidence", s.handleEvidence)
	mux.HandleFunc("/api/policy", s.handlePolicy)
	mux.HandleFunc("/api/health", s.handleHealth)

	var h http.Handler = mux
	h = AuthMiddleware(validator)(h)
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return RequestID(h)
}

func (s *Server) current() (*pipeline.Analyzer, pipeline.Config) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analyzer, s.cfg
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r.Method)
		return
	}
	var artifact contracts.FeatureArtifact
	if err := decodeBody(w, r, &artifact); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	analyzer, _ := s.current()
	start := time.Now()
	result, err := analyzer.Analyze(r.Context(), artifact)
	if err != nil {
		s.telemetry.RecordError(r.Context(), err)
		WriteBadRequest(w, err.Error())
		return
	}
	s.telemetry.RecordAnalysis(r.Context())
	s.telemetry.RecordDuration(r.Context(), time.Since(start))
	if result.Committed {
		s.telemetry.RecordCommit(r.Context())
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBulkAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r.Method)
		return
	}
	var artifacts []contracts.FeatureArtifact
	if err := decodeBody(w, r, &artifacts); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if len(artifacts) == 0 {
		WriteBadRequest(w, "at least one artifact is required")
		return
	}

	analyzer, _ := s.current()
	batch, err := analyzer.AnalyzeBatch(r.Context(), artifacts)
	if err != nil {
		WriteInternal(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r.Method)
		return
	}
	var snapshot []byte
	var policyHash string
	if s.store != nil {
		snapshot, policyHash = s.store.Snapshot()
	}
	bundle, checksum, err := s.exporter.ExportBundle(snapshot, policyHash)
	if err != nil {
		s.logger.Error("evidence export failed", "error", err)
		WriteInternal(w, "evidence export failed")
		return
	}

	filename := fmt.Sprintf("evidence-%s.zip", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Bundle-Checksum", checksum)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(bundle); err != nil {
		s.logger.Warn("evidence bundle write interrupted", "error", err)
	}
}

type policyRequest struct {
	Authority string `json:"authority"`
}

type policyResponse struct {
	Authority string `json:"authority"`
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		_, cfg := s.current()
		writeJSON(w, http.StatusOK, policyResponse{Authority: string(cfg.Authority)})
	case http.MethodPost:
		var req policyRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		authority := merge.Authority(req.Authority)
		if authority != merge.AuthorityRules && authority != merge.AuthorityModel {
			WriteBadRequest(w, "authority must be 'rules' or 'model'")
			return
		}

		s.mu.Lock()
		if s.cfg.Authority != authority {
			s.cfg.Authority = authority
			s.analyzer = s.build(s.cfg)
			s.logger.Info("decision authority changed", "authority", authority)
		}
		cfg := s.cfg
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, policyResponse{Authority: string(cfg.Authority)})
	default:
		WriteMethodNotAllowed(w, r.Method)
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Authority     string `json:"authority"`
	PolicyVersion string `json:"policy_version,omitempty"`
	PolicyHash    string `json:"policy_hash,omitempty"`
	RuleCount     int    `json:"rule_count"`
	ReceiptCount  int    `json:"receipt_count"`
	MerkleRoot    string `json:"merkle_root,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r.Method)
		return
	}
	_, cfg := s.current()
	resp := healthResponse{
		Status:    "ok",
		Authority: string(cfg.Authority),
	}
	if s.store != nil {
		doc := s.store.Document()
		resp.PolicyVersion = doc.Version
		resp.RuleCount = len(doc.Rules)
		_, resp.PolicyHash = s.store.Snapshot()
	}
	if s.ledger != nil {
		resp.ReceiptCount = s.ledger.Len()
		resp.MerkleRoot = s.ledger.MerkleRoot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
