// Package retrieval is the client side of the evidence search collaborator.
//
// The gate never computes embeddings; it sends query text and consumes the
// similarity scores it gets back. Wrappers add rate limiting, retries and a
// per-proposal memo around any backend.
package retrieval

import (
	"context"
	"sort"

	"github.com/ppiankov/proposalgate/internal/model"
)

// Query kinds, used to keep claim and paragraph lookups apart in the memo
const (
	KindClaim     = "claim"
	KindParagraph = "paragraph"
)

// Request is one retrieval call
type Request struct {
	Text       string
	TopK       int
	Scope      string // organization whose knowledge base is searched
	ProposalID string // memo partition; never shared across proposals
	Kind       string
}

// Retriever returns evidence chunks for a query, best first
type Retriever interface {
	Retrieve(ctx context.Context, req Request) ([]model.EvidenceChunk, error)
}

// Func adapts a function to the Retriever interface
type Func func(ctx context.Context, req Request) ([]model.EvidenceChunk, error)

// Retrieve calls f
func (f Func) Retrieve(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
	return f(ctx, req)
}

// Empty is the "none" backend: an empty knowledge base
type Empty struct{}

// Retrieve always returns no chunks
func (Empty) Retrieve(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
	return nil, ctx.Err()
}

// Best returns the highest-similarity chunk
func Best(chunks []model.EvidenceChunk) (model.EvidenceChunk, bool) {
	if len(chunks) == 0 {
		return model.EvidenceChunk{}, false
	}
	best := chunks[0]
	for _, c := range chunks[1:] {
		if c.Similarity > best.Similarity {
			best = c
		}
	}
	return best, true
}

// sortBySimilarity orders chunks best first, clamps similarity to [0,1] and truncates to topK
func sortBySimilarity(chunks []model.EvidenceChunk, topK int) []model.EvidenceChunk {
	for i := range chunks {
		if chunks[i].Similarity < 0 {
			chunks[i].Similarity = 0
		}
		if chunks[i].Similarity > 1 {
			chunks[i].Similarity = 1
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})
	if topK > 0 && len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks
}
