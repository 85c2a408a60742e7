package audit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/store"
)

func openInMemory(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id, proposalID string, state model.GateState, ts time.Time) model.AuditRecord {
	decision := model.DecisionAllow
	switch state {
	case model.StateBlock:
		decision = model.DecisionBlock
	case model.StateWarnNeedsAttestation, model.StateWarnAdvisory, model.StateWarnAcknowledged:
		decision = model.DecisionWarn
	}
	return model.AuditRecord{
		ID: id, ProposalID: proposalID, UserID: "u1", ExportFormat: "pdf",
		Decision: decision, State: state, BlocksJSON: "[]", WarningsJSON: "[]", Timestamp: ts,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestBadgerStore_AppendAndList(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendAudit(ctx, record("b", "p1", model.StateAllow, base.Add(time.Minute))))
	require.NoError(t, s.AppendAudit(ctx, record("a", "p1", model.StateBlock, base)))
	require.NoError(t, s.AppendAudit(ctx, record("c", "p2", model.StateAllow, base)))

	err := s.AppendAudit(ctx, record("a", "p1", model.StateBlock, base))
	assert.ErrorIs(t, err, store.ErrConflict)

	list, err := s.ListAudit(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	_, err = s.GetAudit(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBadgerStore_AttestIsConditional(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.AppendAudit(ctx, record("w", "p1", model.StateWarnNeedsAttestation, now)))
	require.NoError(t, s.AppendAudit(ctx, record("x", "p1", model.StateBlock, now)))

	rec, err := s.Attest(ctx, "w", now)
	require.NoError(t, err)
	assert.Equal(t, model.StateWarnAcknowledged, rec.State)

	_, err = s.Attest(ctx, "w", now)
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = s.Attest(ctx, "x", now)
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = s.Attest(ctx, "none", now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetAudit(ctx, "w")
	require.NoError(t, err)
	assert.True(t, got.IsAttested())
}

func TestBadgerStore_ConcurrentAttestOnlyOneWins(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()
	require.NoError(t, s.AppendAudit(ctx, record("w", "p1", model.StateWarnNeedsAttestation, time.Now())))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		attempts = 8
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Attest(ctx, "w", time.Now()); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestBadgerStore_MarkFinalized(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.AppendAudit(ctx, record("ok", "p1", model.StateWarnAdvisory, now)))
	require.NoError(t, s.AppendAudit(ctx, record("blocked", "p1", model.StateBlock, now)))

	rec, err := s.MarkFinalized(ctx, "ok", now)
	require.NoError(t, err)
	require.NotNil(t, rec.FinalizedAt)

	_, err = s.MarkFinalized(ctx, "ok", now)
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = s.MarkFinalized(ctx, "blocked", now)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	ctx := context.Background()

	s, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.AppendAudit(ctx, record("r1", "p1", model.StateAllow, time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec, err := s.GetAudit(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StateAllow, rec.State)
}

func TestWithBadger_RoutesAudit(t *testing.T) {
	log := openInMemory(t)
	base := store.NewMemoryStore()
	s := WithBadger(base, log)
	ctx := context.Background()

	require.NoError(t, s.PutProposal(ctx, model.Proposal{ID: "p1", OrganizationID: "o"}))
	require.NoError(t, s.AppendAudit(ctx, record("r1", "p1", model.StateAllow, time.Now())))

	_, err := base.GetAudit(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec, err := log.GetAudit(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.ProposalID)

	_, err = s.GetProposal(ctx, "p1")
	assert.NoError(t, err)
}
