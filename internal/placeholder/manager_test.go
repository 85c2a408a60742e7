package placeholder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/proposalgate/internal/markup"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/store"
)

const (
	missing  = "[[PLACEHOLDER:MISSING_DATA:Total budget:ph1]]"
	verify   = "[[PLACEHOLDER:VERIFICATION_NEEDED:Confirm partner count:ph2]]"
	optional = "[[PLACEHOLDER:USER_INPUT_REQUIRED:Add a quote:ph3]]"
)

func setup(t *testing.T, content string) (*Manager, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.PutSection(context.Background(), model.Section{
		ID: "s1", ProposalID: "p1", Name: "Budget", Content: content,
	}))
	return NewManager(s, s, nil), s
}

func statusOf(t *testing.T, s *store.MemoryStore, id string) model.PlaceholderStatus {
	t.Helper()
	list, err := s.ListPlaceholders(context.Background(), "s1")
	require.NoError(t, err)
	for _, p := range list {
		if p.ID == id {
			return p.Status
		}
	}
	t.Fatalf("placeholder %s not stored", id)
	return ""
}

func TestScanAndPersist_Summary(t *testing.T) {
	m, _ := setup(t, "Revenue grew 40%. "+missing+"\n\n"+verify+" "+optional)

	summary, err := m.ScanAndPersist(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.PlaceholderSummary{Total: 3, Unresolved: 3, Blocking: 2}, summary)
}

func TestScanAndPersist_MissingTokensBecomeResolved(t *testing.T) {
	m, s := setup(t, missing+" "+verify)
	ctx := context.Background()

	_, err := m.ScanAndPersist(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateContent(ctx, "s1", "The budget is $10,000. "+verify))
	summary, err := m.ScanAndPersist(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, model.PlaceholderResolved, statusOf(t, s, "ph1"))
	assert.Equal(t, model.PlaceholderUnresolved, statusOf(t, s, "ph2"))
	assert.Equal(t, 1, summary.Blocking)
}

func TestScanAndPersist_Idempotent(t *testing.T) {
	m, s := setup(t, missing)
	ctx := context.Background()

	_, err := m.ScanAndPersist(ctx, "s1")
	require.NoError(t, err)
	first, _ := s.ListPlaceholders(ctx, "s1")

	time.Sleep(time.Millisecond)
	_, err = m.ScanAndPersist(ctx, "s1")
	require.NoError(t, err)
	second, _ := s.ListPlaceholders(ctx, "s1")

	assert.Equal(t, first, second)
}

func TestResolve_ReplacesVerbatimAtTokenPosition(t *testing.T) {
	content := "Our total budget is " + missing + " for 2025."
	m, s := setup(t, content)
	ctx := context.Background()
	_, err := m.ScanAndPersist(ctx, "s1")
	require.NoError(t, err)

	pos := strings.Index(content, missing)
	value := "$1,250,000 (audited: FY24)"

	summary, err := m.Resolve(ctx, "s1", "ph1", value)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Blocking)

	sec, err := s.GetSection(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, value, sec.Content[pos:pos+len(value)])

	for _, tok := range markup.Placeholders(sec.Content) {
		assert.NotEqual(t, "ph1", tok.ID)
	}
	assert.Equal(t, model.PlaceholderResolved, statusOf(t, s, "ph1"))
}

func TestResolve_NotFound(t *testing.T) {
	m, s := setup(t, "No tokens here.")
	_, err := m.Resolve(context.Background(), "s1", "ph9", "x")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "ph9", nf.PlaceholderID)

	// no partial mutation
	sec, _ := s.GetSection(context.Background(), "s1")
	assert.Equal(t, "No tokens here.", sec.Content)
}

func TestResolve_ExportedSectionIsLocked(t *testing.T) {
	m, s := setup(t, missing)
	ctx := context.Background()
	require.NoError(t, s.MarkExported(ctx, []string{"s1"}, time.Now()))

	_, err := m.Resolve(ctx, "s1", "ph1", "x")
	assert.ErrorIs(t, err, store.ErrSectionLocked)
}

func TestDismiss(t *testing.T) {
	m, s := setup(t, "Intro. "+optional+" "+missing)
	ctx := context.Background()
	_, err := m.ScanAndPersist(ctx, "s1")
	require.NoError(t, err)

	summary, err := m.Dismiss(ctx, "s1", "ph3")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unresolved)
	assert.Equal(t, model.PlaceholderDismissed, statusOf(t, s, "ph3"))

	sec, _ := s.GetSection(ctx, "s1")
	assert.NotContains(t, sec.Content, optional)
}

func TestDismiss_BlockingTypesRejected(t *testing.T) {
	m, s := setup(t, missing+" "+verify)
	ctx := context.Background()

	for _, id := range []string{"ph1", "ph2"} {
		_, err := m.Dismiss(ctx, "s1", id)
		var inv *InvalidOperationError
		require.ErrorAs(t, err, &inv)
		assert.ErrorIs(t, err, ErrInvalidOperation)
	}

	sec, _ := s.GetSection(ctx, "s1")
	assert.Equal(t, missing+" "+verify, sec.Content)

	_, err := m.Dismiss(ctx, "s1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlocking_VerificationAttestationException(t *testing.T) {
	list := []model.Placeholder{
		{ID: "a", Type: model.PlaceholderMissingData, Status: model.PlaceholderUnresolved},
		{ID: "b", Type: model.PlaceholderVerificationNeeded, Status: model.PlaceholderUnresolved},
		{ID: "c", Type: model.PlaceholderUserInputRequired, Status: model.PlaceholderUnresolved},
		{ID: "d", Type: model.PlaceholderMissingData, Status: model.PlaceholderResolved},
	}

	assert.Len(t, Blocking(list, nil), 2)

	blocking := Blocking(list, map[string]bool{"a": true, "b": true})
	require.Len(t, blocking, 1)
	assert.Equal(t, "a", blocking[0].ID)
}
