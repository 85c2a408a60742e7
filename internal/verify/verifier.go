// Package verify checks extracted claims against retrieved organizational evidence.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/extract"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/retrieval"
	"github.com/ppiankov/proposalgate/internal/store"
	"github.com/ppiankov/proposalgate/internal/worker"
)

// ClassifyClaim applies the verified/partial thresholds to the best similarity.
// found is false when retrieval returned nothing or failed.
func ClassifyClaim(similarity float64, found bool, th model.ThresholdConfig) model.ClaimStatus {
	switch {
	case !found:
		return model.ClaimUnverified
	case similarity >= th.Verified:
		return model.ClaimVerified
	case similarity >= th.Partial:
		return model.ClaimPartial
	default:
		return model.ClaimUnverified
	}
}

// Verifier extracts claims from a section and verifies each one concurrently
type Verifier struct {
	extractor  *extract.ClaimExtractor
	policy     *RiskPolicy
	retriever  retrieval.Retriever
	claims     store.ClaimStore
	thresholds model.ThresholdConfig
	topK       int
	workers    int
	logger     *zap.Logger
	now        func() time.Time
}

// NewVerifier creates a verifier from config
func NewVerifier(cfg *model.Config, retriever retrieval.Retriever, claims store.ClaimStore, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		extractor:  extract.NewClaimExtractor(cfg.Extract.ContextWindow),
		policy:     NewRiskPolicy(cfg.Risk),
		retriever:  retriever,
		claims:     claims,
		thresholds: cfg.Thresholds,
		topK:       cfg.Retrieval.TopK,
		workers:    cfg.Retrieval.Workers,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type claimJob struct {
	index     int
	retriever retrieval.Retriever
	req       retrieval.Request
}

type claimResult struct {
	index  int
	chunks []model.EvidenceChunk
	err    error
}

func (r *claimResult) GetError() error { return r.err }
func (r *claimResult) Index() int      { return r.index }

func (j *claimJob) Execute(ctx context.Context) worker.Result {
	chunks, err := j.retriever.Retrieve(ctx, j.req)
	return &claimResult{index: j.index, chunks: chunks, err: err}
}

// VerifySection extracts and verifies the section's claims without persisting them.
// A failed lookup marks its claim UNVERIFIED; cancelling ctx discards all results.
func (v *Verifier) VerifySection(ctx context.Context, proposal model.Proposal, sec model.Section) ([]model.Claim, error) {
	claims := v.extractor.Extract(sec.Content)
	if len(claims) == 0 {
		return []model.Claim{}, nil
	}

	jobs := make([]worker.Job, len(claims))
	for i := range claims {
		claims[i].ID = uuid.NewString()
		claims[i].SectionID = sec.ID
		claims[i].RiskLevel = v.policy.Classify(claims[i])
		jobs[i] = &claimJob{
			index:     i,
			retriever: v.retriever,
			req: retrieval.Request{
				Text:       claims[i].Context,
				TopK:       v.topK,
				Scope:      proposal.OrganizationID,
				ProposalID: proposal.ID,
				Kind:       retrieval.KindClaim,
			},
		}
	}

	results, err := worker.RunBatch(ctx, v.workers, jobs)
	if err != nil {
		return nil, fmt.Errorf("verify section %s: %w", sec.ID, err)
	}

	now := v.now()
	failures := 0
	for i, r := range results {
		res := r.(*claimResult)
		claims[i].CheckedAt = now

		if res.err != nil {
			failures++
			claims[i].Status = model.ClaimUnverified
			v.logger.Warn("claim retrieval failed",
				zap.String("section_id", sec.ID),
				zap.String("claim", claims[i].Value),
				zap.Error(res.err))
			continue
		}

		best, found := retrieval.Best(res.chunks)
		claims[i].Status = ClassifyClaim(best.Similarity, found, v.thresholds)
		if found {
			claims[i].Evidence = &model.EvidenceMatch{
				DocumentID:  best.DocumentID,
				MatchedText: best.MatchedText,
				Similarity:  best.Similarity,
			}
		}
	}

	v.logger.Debug("claims verified",
		zap.String("section_id", sec.ID),
		zap.Int("claims", len(claims)),
		zap.Int("retrieval_failures", failures))
	return claims, nil
}

// Persist replaces the stored claims of a section with claims
func (v *Verifier) Persist(ctx context.Context, sectionID string, claims []model.Claim) error {
	if err := v.claims.ReplaceClaims(ctx, sectionID, claims); err != nil {
		return fmt.Errorf("persist claims of %s: %w", sectionID, err)
	}
	return nil
}

// SummarizeSection aggregates the stored claims of one section
func (v *Verifier) SummarizeSection(ctx context.Context, sectionID string) (model.ClaimSummary, error) {
	claims, err := v.claims.ListClaims(ctx, sectionID)
	if err != nil {
		return model.ClaimSummary{}, err
	}
	return Summarize(claims), nil
}

// SummarizeProposal aggregates the stored claims of every section of a proposal
func (v *Verifier) SummarizeProposal(ctx context.Context, sections store.SectionStore, proposalID string) (model.ClaimSummary, error) {
	secs, err := sections.ListSections(ctx, proposalID)
	if err != nil {
		return model.ClaimSummary{}, err
	}
	var all []model.Claim
	for _, sec := range secs {
		claims, err := v.claims.ListClaims(ctx, sec.ID)
		if err != nil {
			return model.ClaimSummary{}, err
		}
		all = append(all, claims...)
	}
	return Summarize(all), nil
}

// Summarize counts claims by status. VerificationRate is 0 when there are no claims.
func Summarize(claims []model.Claim) model.ClaimSummary {
	var s model.ClaimSummary
	for _, c := range claims {
		s.Total++
		switch c.Status {
		case model.ClaimVerified:
			s.Verified++
		case model.ClaimPartial:
			s.Partial++
		case model.ClaimUnverified:
			s.Unverified++
		}
		if c.IsHighRiskUnverified() {
			s.HighRiskUnverified++
		}
	}
	if s.Total > 0 {
		s.VerificationRate = float64(s.Verified) / float64(s.Total)
	}
	return s
}
