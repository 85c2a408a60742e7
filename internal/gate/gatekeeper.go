// Package gate decides whether a proposal may be exported.
//
// Evaluate fuses placeholder, claim, grounding and checklist signals into a
// BLOCK, WARN or ALLOW decision and writes one audit record per call. A WARN
// that requires attestation becomes exportable only after SubmitAttestation,
// and Finalize re-checks the record against current state right before export.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/proposalgate/internal/checklist"
	"github.com/ppiankov/proposalgate/internal/grounding"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/placeholder"
	"github.com/ppiankov/proposalgate/internal/retrieval"
	"github.com/ppiankov/proposalgate/internal/store"
	"github.com/ppiankov/proposalgate/internal/verify"
)

// Gatekeeper orchestrates one proposal's signals and owns its audit trail
type Gatekeeper struct {
	cfg          *model.Config
	store        store.Store
	placeholders *placeholder.Manager
	verifier     *verify.Verifier
	classifier   *grounding.Classifier
	mapper       *checklist.Mapper
	logger       *zap.Logger
	now          func() time.Time
}

// New wires a gatekeeper over st, querying evidence through retriever
func New(cfg *model.Config, st store.Store, retriever retrieval.Retriever, logger *zap.Logger) *Gatekeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatekeeper{
		cfg:          cfg,
		store:        st,
		placeholders: placeholder.NewManager(st, st, logger),
		verifier:     verify.NewVerifier(cfg, retriever, st, logger),
		classifier:   grounding.NewClassifier(cfg, retriever, st, logger),
		mapper:       checklist.NewMapper(cfg, st, st, logger),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Placeholders exposes the placeholder manager sharing the gatekeeper's store
func (g *Gatekeeper) Placeholders() *placeholder.Manager { return g.placeholders }

// Mapper exposes the checklist mapper sharing the gatekeeper's store
func (g *Gatekeeper) Mapper() *checklist.Mapper { return g.mapper }

// snapshot is everything read for one decision
type snapshot struct {
	inputs   Inputs
	signals  model.GateSignals
	mappings []model.SectionMapping
}

// Evaluate renders a decision for the proposal and persists its audit record.
// Policy outcomes are never errors; only infrastructure failures are returned.
func (g *Gatekeeper) Evaluate(ctx context.Context, req model.EvaluateRequest) (*model.GateResult, error) {
	start := time.Now()

	proposal, err := g.store.GetProposal(ctx, req.ProposalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("evaluate %s: %w", req.ProposalID, err)
	}
	if err != nil {
		return nil, infra("read proposal", err)
	}

	refresh := g.cfg.Gate.SignalMode == model.SignalModeRefresh
	snap, err := g.collect(ctx, *proposal, refresh, g.cfg.Gate.AutoMapOnEvaluate)
	if err != nil {
		return nil, infra("collect signals", err)
	}

	out := Decide(snap.inputs, g.cfg.Thresholds)

	blocksJSON, err := json.Marshal(out.Blocks)
	if err != nil {
		return nil, infra("encode blocks", err)
	}
	warningsJSON, err := json.Marshal(out.Warnings)
	if err != nil {
		return nil, infra("encode warnings", err)
	}

	rec := model.AuditRecord{
		ID:              uuid.NewString(),
		ProposalID:      proposal.ID,
		UserID:          req.UserID,
		ExportFormat:    req.ExportFormat,
		Decision:        out.Decision,
		State:           out.State,
		PrimaryRuleID:   out.PrimaryRuleID,
		BlocksJSON:      string(blocksJSON),
		WarningsJSON:    string(warningsJSON),
		Fingerprint:     Fingerprint(snap.inputs.Sections, snap.mappings),
		ClaimKeys:       out.ClaimKeys,
		AttestationText: out.AttestationText,
		Timestamp:       g.now(),
	}
	if err := g.store.AppendAudit(ctx, rec); err != nil {
		// no decision without a persisted trail
		return nil, infra("write audit record", err)
	}

	evaluationsTotal.WithLabelValues(string(out.Decision)).Inc()
	evaluationSeconds.Observe(time.Since(start).Seconds())

	g.logger.Info("proposal evaluated",
		zap.String("proposal_id", proposal.ID),
		zap.String("user_id", req.UserID),
		zap.String("decision", string(out.Decision)),
		zap.String("state", string(out.State)),
		zap.String("primary_rule", string(out.PrimaryRuleID)),
		zap.String("audit_record_id", rec.ID),
		zap.Duration("elapsed", time.Since(start)))

	signals := snap.signals
	return &model.GateResult{
		Decision:            out.Decision,
		State:               out.State,
		Blocks:              out.Blocks,
		Warnings:            out.Warnings,
		AttestationRequired: out.AttestationRequired,
		AttestationText:     out.AttestationText,
		AuditRecordID:       rec.ID,
		Signals:             &signals,
	}, nil
}

// collect gathers signals. With refresh, claims and attributions are recomputed
// concurrently and persisted only once every section succeeded, so a failed or
// cancelled evaluation leaves the store untouched; otherwise the last persisted
// pass is used. Placeholders are always rescanned since that needs no external call.
func (g *Gatekeeper) collect(ctx context.Context, proposal model.Proposal, refresh, autoMap bool) (*snapshot, error) {
	sections, err := g.store.ListSections(ctx, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	claims := make([][]model.Claim, len(sections))
	coverage := make([]model.SectionCoverage, len(sections))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Retrieval.Workers)
	for i, sec := range sections {
		eg.Go(func() error {
			if !refresh {
				stored, err := g.store.ListClaims(egCtx, sec.ID)
				if err != nil {
					return fmt.Errorf("list claims of %s: %w", sec.ID, err)
				}
				claims[i] = stored
				coverage[i], err = g.classifier.Persisted(egCtx, sec)
				return err
			}

			var err error
			if claims[i], err = g.verifier.VerifySection(egCtx, proposal, sec); err != nil {
				return err
			}
			coverage[i], err = g.classifier.ClassifySection(egCtx, proposal, sec)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, sec := range sections {
		if _, err := g.placeholders.ScanAndPersist(ctx, sec.ID); err != nil {
			return nil, fmt.Errorf("scan placeholders of %s: %w", sec.ID, err)
		}
		if !refresh {
			continue
		}
		if err := g.verifier.Persist(ctx, sec.ID, claims[i]); err != nil {
			return nil, err
		}
		if err := g.classifier.Persist(ctx, coverage[i]); err != nil {
			return nil, err
		}
	}

	in := Inputs{
		Sections:             sections,
		Placeholders:         make(map[string][]model.Placeholder, len(sections)),
		VerificationAttested: make(map[string]map[string]bool, len(sections)),
		Coverage:             coverage,
		AttestedClaimKeys:    make(map[string]bool),
	}
	var summary model.PlaceholderSummary
	for i, sec := range sections {
		phs, err := g.store.ListPlaceholders(ctx, sec.ID)
		if err != nil {
			return nil, fmt.Errorf("list placeholders of %s: %w", sec.ID, err)
		}
		attestations, err := g.store.ListVerificationAttestations(ctx, sec.ID)
		if err != nil {
			return nil, fmt.Errorf("list verification attestations of %s: %w", sec.ID, err)
		}
		attested := make(map[string]bool, len(attestations))
		for _, a := range attestations {
			attested[a.PlaceholderID] = true
		}
		in.Placeholders[sec.ID] = phs
		in.VerificationAttested[sec.ID] = attested

		s := placeholder.Summarize(phs)
		summary.Total += s.Total
		summary.Unresolved += s.Unresolved
		summary.Blocking += len(placeholder.Blocking(phs, attested))

		sorted := append([]model.Claim(nil), claims[i]...)
		sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Offset < sorted[b].Offset })
		in.Claims = append(in.Claims, sorted...)
	}

	if autoMap {
		if _, err := g.mapper.AutoMap(ctx, proposal.ID); err != nil {
			return nil, err
		}
	}
	validation, err := g.mapper.Validate(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	in.Checklist = validation

	mappings, err := g.store.ListMappings(ctx, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}

	records, err := g.store.ListAudit(ctx, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	for _, r := range records {
		if !r.IsAttested() {
			continue
		}
		for _, k := range r.ClaimKeys {
			in.AttestedClaimKeys[k] = true
		}
	}

	return &snapshot{
		inputs: in,
		signals: model.GateSignals{
			Placeholders: summary,
			Claims:       verify.Summarize(in.Claims),
			Coverage:     coverage,
			Checklist:    validation,
		},
		mappings: mappings,
	}, nil
}

// SubmitAttestation confirms the statement issued with a WARN_NEEDS_ATTESTATION record.
// The update is conditional, so only one of several concurrent submissions succeeds.
func (g *Gatekeeper) SubmitAttestation(ctx context.Context, auditRecordID, text string) (*model.AuditRecord, error) {
	rec, err := g.store.GetAudit(ctx, auditRecordID)
	if err != nil {
		attestationsTotal.WithLabelValues(attestResult(err)).Inc()
		return nil, fmt.Errorf("attest %s: %w", auditRecordID, err)
	}
	if rec.State != model.StateWarnNeedsAttestation {
		attestationsTotal.WithLabelValues("conflict").Inc()
		return nil, fmt.Errorf("attest %s in state %s: %w", auditRecordID, rec.State, store.ErrConflict)
	}
	if normalizeStatement(text) != normalizeStatement(rec.AttestationText) {
		attestationsTotal.WithLabelValues("mismatch").Inc()
		return nil, ErrAttestationMismatch
	}

	attested, err := g.store.Attest(ctx, auditRecordID, g.now())
	if err != nil {
		attestationsTotal.WithLabelValues(attestResult(err)).Inc()
		return nil, fmt.Errorf("attest %s: %w", auditRecordID, err)
	}

	attestationsTotal.WithLabelValues("accepted").Inc()
	g.logger.Info("attestation accepted",
		zap.String("audit_record_id", auditRecordID),
		zap.String("proposal_id", attested.ProposalID),
		zap.Int("claims", len(attested.ClaimKeys)))
	return attested, nil
}

// AttestVerification records that a VERIFICATION_NEEDED placeholder was vouched for.
// Other placeholder types must be resolved instead.
func (g *Gatekeeper) AttestVerification(ctx context.Context, sectionID, placeholderID, userID, statement string) (*model.VerificationAttestation, error) {
	phs, err := g.store.ListPlaceholders(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list placeholders of %s: %w", sectionID, err)
	}

	var target *model.Placeholder
	for i := range phs {
		if phs[i].ID == placeholderID && phs[i].Status == model.PlaceholderUnresolved {
			target = &phs[i]
			break
		}
	}
	if target == nil {
		return nil, &placeholder.NotFoundError{SectionID: sectionID, PlaceholderID: placeholderID}
	}
	if target.Type != model.PlaceholderVerificationNeeded {
		return nil, &placeholder.InvalidOperationError{Op: "attest", PlaceholderID: placeholderID, Type: target.Type}
	}

	a := model.VerificationAttestation{
		ID:            uuid.NewString(),
		SectionID:     sectionID,
		PlaceholderID: placeholderID,
		UserID:        userID,
		Statement:     statement,
		AttestedAt:    g.now(),
	}
	if err := g.store.PutVerificationAttestation(ctx, a); err != nil {
		return nil, fmt.Errorf("store verification attestation: %w", err)
	}
	return &a, nil
}

// Finalize is the last check before export. It rejects records whose decision
// does not allow export, re-derives the decision from persisted state, and
// locks the proposal's sections.
func (g *Gatekeeper) Finalize(ctx context.Context, auditRecordID string) (*model.AuditRecord, error) {
	rec, err := g.store.GetAudit(ctx, auditRecordID)
	if err != nil {
		return nil, fmt.Errorf("finalize %s: %w", auditRecordID, err)
	}
	if !rec.State.Exportable() || rec.FinalizedAt != nil {
		return nil, fmt.Errorf("finalize %s in state %s: %w", auditRecordID, rec.State, ErrNotExportable)
	}

	proposal, err := g.store.GetProposal(ctx, rec.ProposalID)
	if err != nil {
		return nil, infra("read proposal", err)
	}
	snap, err := g.collect(ctx, *proposal, false, false)
	if err != nil {
		return nil, infra("collect signals", err)
	}
	if Fingerprint(snap.inputs.Sections, snap.mappings) != rec.Fingerprint {
		return nil, fmt.Errorf("finalize %s: content or mappings changed: %w", auditRecordID, ErrStaleDecision)
	}
	if out := Decide(snap.inputs, g.cfg.Thresholds); !out.State.Exportable() {
		return nil, fmt.Errorf("finalize %s: re-derived state %s: %w", auditRecordID, out.State, ErrStaleDecision)
	}

	// Lock first: a finalized record must never leave editable sections behind.
	// Locking is idempotent, so a retry after a failed MarkFinalized is safe.
	now := g.now()
	ids := make([]string, 0, len(snap.inputs.Sections))
	for _, s := range snap.inputs.Sections {
		ids = append(ids, s.ID)
	}
	if err := g.store.MarkExported(ctx, ids, now); err != nil {
		return nil, infra("lock exported sections", err)
	}

	finalized, err := g.store.MarkFinalized(ctx, auditRecordID, now)
	if err != nil {
		return nil, fmt.Errorf("finalize %s: %w", auditRecordID, err)
	}

	g.logger.Info("export finalized",
		zap.String("audit_record_id", auditRecordID),
		zap.String("proposal_id", rec.ProposalID),
		zap.Int("sections", len(ids)))
	return finalized, nil
}

// Fingerprint hashes section contents and mappings, the state an audit record vouches for
func Fingerprint(sections []model.Section, mappings []model.SectionMapping) string {
	h := sha256.New()
	for _, s := range sections {
		fmt.Fprintf(h, "section\x00%s\x00%s\x00", s.ID, s.Content)
	}

	keys := make([]string, 0, len(mappings))
	for _, m := range mappings {
		keys = append(keys, m.ChecklistItemID+"\x00"+m.SectionID+"\x00"+string(m.MappingType))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "mapping\x00%s\x00", k)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func attestResult(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func normalizeStatement(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
