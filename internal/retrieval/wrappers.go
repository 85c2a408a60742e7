package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ppiankov/proposalgate/internal/cache"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/worker"
)

var retrievalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "proposalgate_retrieval_calls_total",
	Help: "Retrieval calls by outcome (ok, empty, error, timeout, memo)",
}, []string{"outcome"})

// Limited throttles calls per scope
type Limited struct {
	next    Retriever
	limiter *worker.Limiter
}

// NewLimited wraps next with limiter
func NewLimited(next Retriever, limiter *worker.Limiter) *Limited {
	return &Limited{next: next, limiter: limiter}
}

// Retrieve waits for the scope's token, then calls next
func (l *Limited) Retrieve(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
	if err := l.limiter.Wait(ctx, req.Scope); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Retrieve(ctx, req)
}

// Memo caches successful results per proposal for a short TTL.
// Keys include the proposal id, so results never leak across proposals.
type Memo struct {
	next  Retriever
	cache cache.Cache[[]model.EvidenceChunk]
	ttl   time.Duration
}

// NewMemo wraps next with a TTL cache. The janitor goroutine runs only when ttl > 0.
func NewMemo(next Retriever, ttl time.Duration) *Memo {
	return &Memo{
		next:  next,
		cache: cache.NewMemoryCache[[]model.EvidenceChunk](ttl, ttl),
		ttl:   ttl,
	}
}

// Retrieve returns a cached result or calls next. Requests without a proposal bypass the memo.
func (m *Memo) Retrieve(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
	if m.ttl <= 0 || req.ProposalID == "" {
		return m.next.Retrieve(ctx, req)
	}

	key := cache.ScopedKey(req.ProposalID, fmt.Sprintf("%s:%s:%d", req.Kind, req.Scope, req.TopK), req.Text)
	if chunks, ok := m.cache.Get(key); ok {
		retrievalCalls.WithLabelValues("memo").Inc()
		return append([]model.EvidenceChunk(nil), chunks...), nil
	}

	chunks, err := m.next.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	m.cache.Set(key, append([]model.EvidenceChunk(nil), chunks...), m.ttl)
	return chunks, nil
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resilient bounds each call with a timeout and retries transient failures with exponential backoff
type Resilient struct {
	next    Retriever
	timeout time.Duration
	retries int
	backoff time.Duration
	sleep   SleepFunc
}

// NewResilient wraps next. timeout <= 0 disables the per-call deadline.
func NewResilient(next Retriever, timeout time.Duration, retries int) *Resilient {
	if retries < 0 {
		retries = 0
	}
	return &Resilient{
		next:    next,
		timeout: timeout,
		retries: retries,
		backoff: 100 * time.Millisecond,
		sleep:   sleepContext,
	}
}

// Retrieve implements Retriever. The timeout covers every attempt together.
func (r *Resilient) Retrieve(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		chunks, err := r.next.Retrieve(callCtx, req)
		if err == nil {
			if len(chunks) == 0 {
				retrievalCalls.WithLabelValues("empty").Inc()
			} else {
				retrievalCalls.WithLabelValues("ok").Inc()
			}
			return chunks, nil
		}
		lastErr = err

		// the caller gave up; do not retry
		if ctx.Err() != nil {
			retrievalCalls.WithLabelValues("error").Inc()
			return nil, ctx.Err()
		}
		if callCtx.Err() != nil {
			retrievalCalls.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("retrieval timed out after %s: %w", r.timeout, err)
		}
		if attempt < r.retries {
			backoff := r.backoff * time.Duration(1<<uint(attempt))
			if err := r.sleep(callCtx, backoff); err != nil {
				break
			}
		}
	}

	retrievalCalls.WithLabelValues("error").Inc()
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("retrieval timed out: %w", lastErr)
	}
	return nil, fmt.Errorf("retrieval failed after %d attempts: %w", r.retries+1, lastErr)
}
