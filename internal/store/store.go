// Package store persists the gate's inputs and its audit trail.
//
// Each concern has its own small interface so components depend only on
// what they touch. MemoryStore and SQLiteStore implement all of them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/proposalgate/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update finds the row in an unexpected state
	ErrConflict = errors.New("conflict")

	// ErrSectionLocked is returned when content of an exported section would change
	ErrSectionLocked = errors.New("section is exported and immutable")
)

// ProposalStore reads and writes proposals
type ProposalStore interface {
	GetProposal(ctx context.Context, id string) (*model.Proposal, error)
	PutProposal(ctx context.Context, p model.Proposal) error
}

// SectionStore reads and writes sections
type SectionStore interface {
	GetSection(ctx context.Context, id string) (*model.Section, error)
	// ListSections returns the proposal's sections ordered by Order
	ListSections(ctx context.Context, proposalID string) ([]model.Section, error)
	PutSection(ctx context.Context, s model.Section) error
	UpdateContent(ctx context.Context, sectionID, content string) error
	MarkExported(ctx context.Context, sectionIDs []string, at time.Time) error
}

// PlaceholderStore holds the last scanned placeholder set per section
type PlaceholderStore interface {
	ListPlaceholders(ctx context.Context, sectionID string) ([]model.Placeholder, error)
	ReplacePlaceholders(ctx context.Context, sectionID string, placeholders []model.Placeholder) error
}

// ClaimStore holds the claims of the last verification pass per section
type ClaimStore interface {
	ListClaims(ctx context.Context, sectionID string) ([]model.Claim, error)
	ReplaceClaims(ctx context.Context, sectionID string, claims []model.Claim) error
}

// AttributionStore holds the paragraph attributions of the last grounding pass per section
type AttributionStore interface {
	ListAttributions(ctx context.Context, sectionID string) ([]model.ParagraphAttribution, error)
	ReplaceAttributions(ctx context.Context, sectionID string, attributions []model.ParagraphAttribution) error
}

// ChecklistStore holds checklist items and their section mappings
type ChecklistStore interface {
	// ListChecklistItems returns the proposal's items ordered by Order
	ListChecklistItems(ctx context.Context, proposalID string) ([]model.ChecklistItem, error)
	PutChecklistItem(ctx context.Context, item model.ChecklistItem) error

	// ListMappings returns every mapping whose item belongs to the proposal
	ListMappings(ctx context.Context, proposalID string) ([]model.SectionMapping, error)

	// CreateMappingIfAbsent inserts m unless a row for (item, section) exists.
	// It reports whether a row was created.
	CreateMappingIfAbsent(ctx context.Context, m model.SectionMapping) (bool, error)

	// SetManualMapping deletes the item's AUTO mappings and upserts a MANUAL one
	SetManualMapping(ctx context.Context, itemID, sectionID string, at time.Time) error

	DeleteMapping(ctx context.Context, itemID, sectionID string) error
}

// VerificationStore records VERIFICATION_NEEDED attestations
type VerificationStore interface {
	PutVerificationAttestation(ctx context.Context, a model.VerificationAttestation) error
	ListVerificationAttestations(ctx context.Context, sectionID string) ([]model.VerificationAttestation, error)
}

// AuditStore is the append-only export audit log
type AuditStore interface {
	AppendAudit(ctx context.Context, rec model.AuditRecord) error
	GetAudit(ctx context.Context, id string) (*model.AuditRecord, error)
	// ListAudit returns the proposal's records oldest first
	ListAudit(ctx context.Context, proposalID string) ([]model.AuditRecord, error)

	// Attest moves a WARN_NEEDS_ATTESTATION record to WARN_ACKNOWLEDGED.
	// ErrNotFound if missing, ErrConflict if the record is in any other state.
	Attest(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error)

	// MarkFinalized stamps FinalizedAt on an exportable, not yet finalized record.
	// ErrNotFound if missing, ErrConflict otherwise.
	MarkFinalized(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error)

	Close() error
}

// Store is everything the gate persists
type Store interface {
	ProposalStore
	SectionStore
	PlaceholderStore
	ClaimStore
	AttributionStore
	ChecklistStore
	VerificationStore
	AuditStore
}

var exportableStates = []model.GateState{model.StateAllow, model.StateWarnAdvisory, model.StateWarnAcknowledged}
