// Package grounding classifies section paragraphs against retrieved evidence
// and derives a per-section coverage score.
package grounding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/extract"
	"github.com/ppiankov/proposalgate/internal/markup"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/retrieval"
	"github.com/ppiankov/proposalgate/internal/store"
	"github.com/ppiankov/proposalgate/internal/worker"
)

// errNoEvidence marks a lookup that succeeded but found nothing to compare against
var errNoEvidence = errors.New("knowledge base returned no evidence")

// Classify applies the grounded/partial thresholds to a best similarity
func Classify(similarity float64, th model.ThresholdConfig) model.GroundingStatus {
	switch {
	case similarity >= th.Verified:
		return model.GroundingGrounded
	case similarity >= th.Partial:
		return model.GroundingPartial
	default:
		return model.GroundingUngrounded
	}
}

// Coverage is the rounded percentage of covered paragraphs, 0 when there are none
func Coverage(attributions []model.ParagraphAttribution) int {
	if len(attributions) == 0 {
		return 0
	}
	covered := 0
	for _, a := range attributions {
		if a.Status.Covered() {
			covered++
		}
	}
	return int(math.Round(100 * float64(covered) / float64(len(attributions))))
}

// Classifier runs one retrieval per paragraph on a bounded pool
type Classifier struct {
	retriever    retrieval.Retriever
	attributions store.AttributionStore
	thresholds   model.ThresholdConfig
	topK         int
	workers      int
	logger       *zap.Logger
}

// NewClassifier creates a classifier from config
func NewClassifier(cfg *model.Config, retriever retrieval.Retriever, attributions store.AttributionStore, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		retriever:    retriever,
		attributions: attributions,
		thresholds:   cfg.Thresholds,
		topK:         cfg.Retrieval.TopK,
		workers:      cfg.Retrieval.Workers,
		logger:       logger,
	}
}

type paragraphJob struct {
	index     int
	retriever retrieval.Retriever
	req       retrieval.Request
}

type paragraphResult struct {
	index  int
	chunks []model.EvidenceChunk
	err    error
}

func (r *paragraphResult) GetError() error { return r.err }
func (r *paragraphResult) Index() int      { return r.index }

func (j *paragraphJob) Execute(ctx context.Context) worker.Result {
	chunks, err := j.retriever.Retrieve(ctx, j.req)
	return &paragraphResult{index: j.index, chunks: chunks, err: err}
}

// ClassifySection attributes every paragraph of sec without persisting anything.
// Paragraphs carrying a placeholder are never sent to retrieval.
func (c *Classifier) ClassifySection(ctx context.Context, proposal model.Proposal, sec model.Section) (model.SectionCoverage, error) {
	paragraphs := extract.SplitParagraphs(sec.Content)
	attributions := make([]model.ParagraphAttribution, len(paragraphs))

	var jobs []worker.Job
	for i, p := range paragraphs {
		attributions[i] = model.ParagraphAttribution{SectionID: sec.ID, ParagraphIndex: i}
		if markup.HasPlaceholder(p) {
			attributions[i].Status = model.GroundingPlaceholder
			continue
		}
		jobs = append(jobs, &paragraphJob{
			index:     len(jobs),
			retriever: c.retriever,
			req: retrieval.Request{
				Text:       markup.Strip(p),
				TopK:       c.topK,
				Scope:      proposal.OrganizationID,
				ProposalID: proposal.ID,
				Kind:       retrieval.KindParagraph,
			},
		})
	}

	// job index -> paragraph index
	targets := make([]int, 0, len(jobs))
	for i := range attributions {
		if attributions[i].Status != model.GroundingPlaceholder {
			targets = append(targets, i)
		}
	}

	results, err := worker.RunBatch(ctx, c.workers, jobs)
	if err != nil {
		return model.SectionCoverage{}, fmt.Errorf("classify section %s: %w", sec.ID, err)
	}

	failures := 0
	for j, r := range results {
		res := r.(*paragraphResult)
		a := &attributions[targets[j]]

		err := res.err
		if err == nil && len(res.chunks) == 0 {
			err = errNoEvidence
		}
		if err != nil {
			failures++
			a.Status = model.GroundingFailed
			a.Error = err.Error()
			continue
		}

		best, _ := retrieval.Best(res.chunks)
		a.Status = Classify(best.Similarity, c.thresholds)
		a.BestSimilarity = best.Similarity
		a.Evidence = res.chunks
	}

	if failures > 0 {
		c.logger.Warn("paragraph retrieval failed",
			zap.String("section_id", sec.ID),
			zap.Int("failed", failures),
			zap.Int("paragraphs", len(paragraphs)))
	}

	return model.SectionCoverage{
		SectionID:    sec.ID,
		SectionName:  sec.Name,
		Score:        Coverage(attributions),
		Paragraphs:   len(paragraphs),
		Attributions: attributions,
	}, nil
}

// Persist replaces the stored attributions of a section with those in cov
func (c *Classifier) Persist(ctx context.Context, cov model.SectionCoverage) error {
	if err := c.attributions.ReplaceAttributions(ctx, cov.SectionID, cov.Attributions); err != nil {
		return fmt.Errorf("persist attributions of %s: %w", cov.SectionID, err)
	}
	return nil
}

// Persisted rebuilds a section's coverage from its stored attributions
func (c *Classifier) Persisted(ctx context.Context, sec model.Section) (model.SectionCoverage, error) {
	attributions, err := c.attributions.ListAttributions(ctx, sec.ID)
	if err != nil {
		return model.SectionCoverage{}, err
	}
	return model.SectionCoverage{
		SectionID:    sec.ID,
		SectionName:  sec.Name,
		Score:        Coverage(attributions),
		Paragraphs:   len(attributions),
		Attributions: attributions,
	}, nil
}
