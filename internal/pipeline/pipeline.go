// Package pipeline wires storage, retrieval, the gatekeeper and the optional
// narrator from one Config, and renders gate reports for the CLI.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/audit"
	"github.com/ppiankov/proposalgate/internal/gate"
	"github.com/ppiankov/proposalgate/internal/llm"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/retrieval"
	"github.com/ppiankov/proposalgate/internal/store"
)

// Pipeline holds the wired components for one process
type Pipeline struct {
	store    store.Store
	gate     *gate.Gatekeeper
	narrator *llm.Narrator // nil when the LLM is disabled
	fetcher  *Fetcher
	config   *model.Config
	logger   *zap.Logger
}

// Report is a gate result plus the optional remediation narrative
type Report struct {
	ProposalID  string            `json:"proposal_id"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
	Result      *model.GateResult `json:"result"`
	Remediation *llm.Remediation  `json:"remediation,omitempty"`
}

// Open builds the configured store, audit log and retriever and wires a pipeline over them
func Open(cfg *model.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	retriever, err := retrieval.New(cfg.Retrieval, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	return New(cfg, st, retriever, logger), nil
}

func openStore(cfg *model.Config, logger *zap.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.Storage.Driver {
	case "memory":
		st = store.NewMemoryStore()
	default:
		s, err := store.OpenSQLite(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		st = s
	}

	if cfg.Audit.Backend == "badger" {
		log, err := audit.Open(audit.Config{Path: cfg.Audit.Path, SyncWrites: true, Logger: logger})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		st = audit.WithBadger(st, log)
	}
	return st, nil
}

// New wires a pipeline over an existing store and retriever
func New(cfg *model.Config, st store.Store, retriever retrieval.Retriever, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	// A broken LLM config never stops the gate; the narrative is optional
	var narrator *llm.Narrator
	if cfg.LLM.Provider != "" {
		n, err := llm.NewNarrator(llm.ConfigFromModel(cfg.LLM), logger)
		if err != nil {
			logger.Warn("LLM narrator disabled", zap.Error(err))
		} else {
			narrator = n
		}
	}

	return &Pipeline{
		store:    st,
		gate:     gate.New(cfg, st, retriever, logger),
		narrator: narrator,
		fetcher:  NewFetcher(30*time.Second, "proposalgate/"+Version, 8<<20, cfg.LLM.HTTPProxy, cfg.LLM.HTTPSProxy, cfg.LLM.NoProxy),
		config:   cfg,
		logger:   logger,
	}
}

// Version is the build version reported by the CLI and the API
var Version = "0.1.0"

// Gate returns the gatekeeper
func (p *Pipeline) Gate() *gate.Gatekeeper { return p.gate }

// Store returns the underlying store
func (p *Pipeline) Store() store.Store { return p.store }

// Narrator returns the narrator, or nil when disabled
func (p *Pipeline) Narrator() *llm.Narrator { return p.narrator }

// Import loads a bundle from a file path or URL and writes it to the store
func (p *Pipeline) Import(ctx context.Context, src string) (*Bundle, error) {
	fetched, err := p.fetcher.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	bundle, err := ParseBundle(fetched.Data)
	if err != nil {
		return nil, err
	}
	if err := Import(ctx, p.store, bundle, time.Now().UTC()); err != nil {
		return nil, err
	}

	p.logger.Info("bundle imported",
		zap.String("source", fetched.Source),
		zap.String("proposal_id", bundle.Proposal.ID),
		zap.Int("sections", len(bundle.Sections)),
		zap.Int("checklist_items", len(bundle.Checklist)))
	return bundle, nil
}

// Evaluate runs the gate and, when explain is set, attaches a remediation narrative.
// The narrative is generated after the decision and never changes it.
func (p *Pipeline) Evaluate(ctx context.Context, req model.EvaluateRequest, explain bool) (*Report, error) {
	result, err := p.gate.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ProposalID:  req.ProposalID,
		EvaluatedAt: time.Now().UTC(),
		Result:      result,
	}

	if explain && p.narrator.IsEnabled() {
		rem, err := p.narrator.Explain(ctx, *result)
		if err != nil {
			p.logger.Warn("remediation narrative failed", zap.Error(err))
		} else {
			report.Remediation = rem
		}
	}
	return report, nil
}

// Close releases the store
func (p *Pipeline) Close() error {
	return p.store.Close()
}
