package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/retrieval"
	"github.com/ppiankov/proposalgate/internal/store"
)

const bundleYAML = `
proposal:
  id: p1
  organization_id: org1
  title: After-school tutoring
sections:
  - id: s1
    name: Executive Summary
    content: We serve students across the county.
  - id: s2
    name: Budget
    content: "Total budget [[PLACEHOLDER:MISSING_DATA:Total budget:b1]]."
checklist:
  - id: c1
    name: Summary
    is_required: true
  - id: c2
    name: Budget
    is_required: true
    word_limit: 50
`

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle([]byte(bundleYAML))
	require.NoError(t, err)

	assert.Equal(t, "org1", b.Proposal.OrganizationID)
	require.Len(t, b.Sections, 2)
	require.Len(t, b.Checklist, 2)
	assert.Equal(t, "p1", b.Checklist[1].ProposalID)
	assert.Equal(t, 2, b.Checklist[1].Order)
	assert.Equal(t, 1.0, b.Checklist[0].ParserConfidence)
	require.NotNil(t, b.Checklist[1].WordLimit)
	assert.Equal(t, 50, *b.Checklist[1].WordLimit)
}

func TestParseBundle_JSON(t *testing.T) {
	b, err := ParseBundle([]byte(`{"proposal": {"id": "p1"}, "sections": [{"id": "s1", "name": "Need", "content": "x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Need", b.Sections[0].Name)
}

func TestParseBundle_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no proposal id", "sections: []"},
		{"section without id", "proposal: {id: p1}\nsections:\n  - name: A"},
		{"duplicate section", "proposal: {id: p1}\nsections:\n  - id: s1\n  - id: s1"},
		{"item without name", "proposal: {id: p1}\nchecklist:\n  - id: c1"},
		{"not yaml", "proposal: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBundle([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestImport_KeepsExportedSections(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	b, err := ParseBundle([]byte(bundleYAML))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, Import(ctx, st, b, now))
	require.NoError(t, st.MarkExported(ctx, []string{"s1"}, now))

	// same content for an exported section is a no-op
	require.NoError(t, Import(ctx, st, b, now))

	b.Sections[0].Content = "Edited after export."
	err = Import(ctx, st, b, now)
	assert.ErrorIs(t, err, store.ErrSectionLocked)

	sec, err := st.GetSection(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "We serve students across the county.", sec.Content)
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Storage.Driver = "memory"
	return New(cfg, store.NewMemoryStore(), retrieval.Empty{}, nil)
}

func TestPipeline_ImportAndEvaluate(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	defer p.Close()

	path := filepath.Join(t.TempDir(), "bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bundleYAML), 0600))

	bundle, err := p.Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "p1", bundle.Proposal.ID)

	report, err := p.Evaluate(ctx, model.EvaluateRequest{ProposalID: "p1", UserID: "u1", ExportFormat: "pdf"}, true)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionBlock, report.Result.Decision)
	assert.Nil(t, report.Remediation, "narrator is disabled by default")

	md := RenderMarkdown(report)
	assert.Contains(t, md, "# Export gate: BLOCK")
	assert.Contains(t, md, string(model.RuleBlockingPlaceholder))
	assert.Contains(t, md, report.Result.AuditRecordID)

	var buf bytes.Buffer
	RenderSummary(&buf, report)
	assert.Contains(t, buf.String(), "Export gate: BLOCK")

	buf.Reset()
	require.NoError(t, RenderJSON(&buf, "-", report))
	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.Result.AuditRecordID, decoded.Result.AuditRecordID)
}

func TestPipeline_EvaluateUnknownProposal(t *testing.T) {
	p := newTestPipeline(t)
	defer p.Close()

	_, err := p.Evaluate(context.Background(), model.EvaluateRequest{ProposalID: "nope", UserID: "u1", ExportFormat: "pdf"}, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpen_MemoryWithBadgerAudit(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Storage.Driver = "memory"
	cfg.Audit.Backend = "badger"
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit")

	p, err := Open(cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Store().PutProposal(ctx, model.Proposal{ID: "p1"}))
	report, err := p.Evaluate(ctx, model.EvaluateRequest{ProposalID: "p1", UserID: "u1", ExportFormat: "docx"}, false)
	require.NoError(t, err)

	rec, err := p.Store().GetAudit(ctx, report.Result.AuditRecordID)
	require.NoError(t, err)
	assert.Equal(t, report.Result.State, rec.State)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Thresholds.Verified = 2
	_, err := Open(cfg, nil)
	assert.Error(t, err)
}
