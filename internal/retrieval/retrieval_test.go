package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/worker"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestBest(t *testing.T) {
	_, ok := Best(nil)
	assert.False(t, ok)

	best, ok := Best([]model.EvidenceChunk{{DocumentID: "a", Similarity: 0.4}, {DocumentID: "b", Similarity: 0.9}})
	require.True(t, ok)
	assert.Equal(t, "b", best.DocumentID)
}

func TestSortBySimilarity_ClampsAndTruncates(t *testing.T) {
	chunks := sortBySimilarity([]model.EvidenceChunk{
		{DocumentID: "low", Similarity: -0.2},
		{DocumentID: "high", Similarity: 1.3},
		{DocumentID: "mid", Similarity: 0.5},
	}, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, "high", chunks[0].DocumentID)
	assert.Equal(t, 1.0, chunks[0].Similarity)
	assert.Equal(t, "mid", chunks[1].DocumentID)
}

func TestParseChunks(t *testing.T) {
	result := &models.GraphQLResponse{Data: map[string]models.JSONObject{
		"Get": map[string]interface{}{
			"EvidenceChunk": []interface{}{
				map[string]interface{}{
					"documentId":   "doc-1",
					"documentName": "Annual Report",
					"content":      "Revenue grew 40% in 2023",
					"pageNumber":   float64(4),
					"_additional":  map[string]interface{}{"certainty": 0.91},
				},
				map[string]interface{}{
					"documentId":  "doc-2",
					"content":     "Other",
					"_additional": map[string]interface{}{"distance": 0.6},
				},
				"malformed",
			},
		},
	}}

	chunks := parseChunks(result, "EvidenceChunk")
	require.Len(t, chunks, 2)
	assert.Equal(t, 0.91, chunks[0].Similarity)
	require.NotNil(t, chunks[0].PageNumber)
	assert.Equal(t, 4, *chunks[0].PageNumber)
	assert.InDelta(t, 0.7, chunks[1].Similarity, 1e-9)

	assert.Empty(t, parseChunks(&models.GraphQLResponse{}, "EvidenceChunk"))
}

func TestNewWeaviateRetriever_InvalidURL(t *testing.T) {
	_, err := NewWeaviateRetriever("not a url", "", "EvidenceChunk", nil)
	assert.Error(t, err)
}

func TestEmpty(t *testing.T) {
	chunks, err := Empty{}.Retrieve(context.Background(), Request{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestResilient_RetriesTransientErrors(t *testing.T) {
	var calls int32
	flaky := Func(func(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection reset")
		}
		return []model.EvidenceChunk{{DocumentID: "d", Similarity: 0.9}}, nil
	})

	r := NewResilient(flaky, time.Second, 2)
	r.sleep = noSleep

	chunks, err := r.Retrieve(context.Background(), Request{Text: "q"})
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestResilient_GivesUp(t *testing.T) {
	var calls int32
	down := Func(func(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("503")
	})

	r := NewResilient(down, time.Second, 1)
	r.sleep = noSleep

	_, err := r.Retrieve(context.Background(), Request{Text: "q"})
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestResilient_Timeout(t *testing.T) {
	slow := Func(func(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	r := NewResilient(slow, 20*time.Millisecond, 3)
	start := time.Now()
	_, err := r.Retrieve(context.Background(), Request{Text: "q"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilient_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResilient(Func(func(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
		return nil, ctx.Err()
	}), time.Second, 3)

	_, err := r.Retrieve(ctx, Request{Text: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemo_PartitionedByProposal(t *testing.T) {
	var calls int32
	backend := Func(func(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
		atomic.AddInt32(&calls, 1)
		return []model.EvidenceChunk{{DocumentID: req.ProposalID, Similarity: 0.8}}, nil
	})
	m := NewMemo(backend, time.Minute)
	ctx := context.Background()

	a1, err := m.Retrieve(ctx, Request{Text: "q", ProposalID: "p1", Kind: KindClaim})
	require.NoError(t, err)
	a2, err := m.Retrieve(ctx, Request{Text: "q", ProposalID: "p1", Kind: KindClaim})
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	b, err := m.Retrieve(ctx, Request{Text: "q", ProposalID: "p2", Kind: KindClaim})
	require.NoError(t, err)
	assert.Equal(t, "p2", b[0].DocumentID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = m.Retrieve(ctx, Request{Text: "q", ProposalID: "p1", Kind: KindParagraph})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestMemo_DoesNotCacheErrors(t *testing.T) {
	var calls int32
	backend := Func(func(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("boom")
		}
		return nil, nil
	})
	m := NewMemo(backend, time.Minute)

	_, err := m.Retrieve(context.Background(), Request{Text: "q", ProposalID: "p1"})
	assert.Error(t, err)
	_, err = m.Retrieve(context.Background(), Request{Text: "q", ProposalID: "p1"})
	assert.NoError(t, err)
}

func TestLimited_PassesThrough(t *testing.T) {
	backend := Func(func(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
		return []model.EvidenceChunk{{DocumentID: req.Scope}}, nil
	})
	l := NewLimited(backend, worker.NewLimiter(100, 5))

	chunks, err := l.Retrieve(context.Background(), Request{Text: "q", Scope: "org1"})
	require.NoError(t, err)
	assert.Equal(t, "org1", chunks[0].DocumentID)
}

func TestNew_Backends(t *testing.T) {
	cfg := model.DefaultConfig().Retrieval
	r, err := New(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, r)

	cfg.Backend = "pinecone"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
