package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/proposalgate/internal/model"
)

type mappingKey struct {
	itemID    string
	sectionID string
}

// MemoryStore is a process-local Store used by tests and the memory driver
type MemoryStore struct {
	mu            sync.RWMutex
	proposals     map[string]model.Proposal
	sections      map[string]model.Section
	placeholders  map[string][]model.Placeholder
	claims        map[string][]model.Claim
	attributions  map[string][]model.ParagraphAttribution
	items         map[string]model.ChecklistItem
	mappings      map[mappingKey]model.SectionMapping
	verifications map[string][]model.VerificationAttestation
	audit         map[string]model.AuditRecord
	auditOrder    []string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals:     make(map[string]model.Proposal),
		sections:      make(map[string]model.Section),
		placeholders:  make(map[string][]model.Placeholder),
		claims:        make(map[string][]model.Claim),
		attributions:  make(map[string][]model.ParagraphAttribution),
		items:         make(map[string]model.ChecklistItem),
		mappings:      make(map[mappingKey]model.SectionMapping),
		verifications: make(map[string][]model.VerificationAttestation),
		audit:         make(map[string]model.AuditRecord),
	}
}

func (s *MemoryStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) PutProposal(ctx context.Context, p model.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = p
	return nil
}

func (s *MemoryStore) GetSection(ctx context.Context, id string) (*model.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[id]
	if !ok {
		return nil, fmt.Errorf("section %s: %w", id, ErrNotFound)
	}
	return &sec, nil
}

func (s *MemoryStore) ListSections(ctx context.Context, proposalID string) ([]model.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Section
	for _, sec := range s.sections {
		if sec.ProposalID == proposalID {
			out = append(out, sec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) PutSection(ctx context.Context, sec model.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sections[sec.ID]; ok && existing.IsExported() {
		return fmt.Errorf("section %s: %w", sec.ID, ErrSectionLocked)
	}
	if sec.UpdatedAt.IsZero() {
		sec.UpdatedAt = time.Now().UTC()
	}
	s.sections[sec.ID] = sec
	return nil
}

func (s *MemoryStore) UpdateContent(ctx context.Context, sectionID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[sectionID]
	if !ok {
		return fmt.Errorf("section %s: %w", sectionID, ErrNotFound)
	}
	if sec.IsExported() {
		return fmt.Errorf("section %s: %w", sectionID, ErrSectionLocked)
	}
	sec.Content = content
	sec.UpdatedAt = time.Now().UTC()
	s.sections[sectionID] = sec
	return nil
}

func (s *MemoryStore) MarkExported(ctx context.Context, sectionIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range sectionIDs {
		if _, ok := s.sections[id]; !ok {
			return fmt.Errorf("section %s: %w", id, ErrNotFound)
		}
	}
	for _, id := range sectionIDs {
		sec := s.sections[id]
		if sec.ExportedAt == nil {
			t := at
			sec.ExportedAt = &t
			s.sections[id] = sec
		}
	}
	return nil
}

func (s *MemoryStore) ListPlaceholders(ctx context.Context, sectionID string) ([]model.Placeholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Placeholder(nil), s.placeholders[sectionID]...), nil
}

func (s *MemoryStore) ReplacePlaceholders(ctx context.Context, sectionID string, placeholders []model.Placeholder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeholders[sectionID] = append([]model.Placeholder(nil), placeholders...)
	return nil
}

func (s *MemoryStore) ListClaims(ctx context.Context, sectionID string) ([]model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Claim(nil), s.claims[sectionID]...), nil
}

func (s *MemoryStore) ReplaceClaims(ctx context.Context, sectionID string, claims []model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[sectionID] = append([]model.Claim(nil), claims...)
	return nil
}

func (s *MemoryStore) ListAttributions(ctx context.Context, sectionID string) ([]model.ParagraphAttribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ParagraphAttribution(nil), s.attributions[sectionID]...), nil
}

func (s *MemoryStore) ReplaceAttributions(ctx context.Context, sectionID string, attributions []model.ParagraphAttribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributions[sectionID] = append([]model.ParagraphAttribution(nil), attributions...)
	return nil
}

func (s *MemoryStore) ListChecklistItems(ctx context.Context, proposalID string) ([]model.ChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemsFor(proposalID), nil
}

func (s *MemoryStore) itemsFor(proposalID string) []model.ChecklistItem {
	var out []model.ChecklistItem
	for _, item := range s.items {
		if item.ProposalID == proposalID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) PutChecklistItem(ctx context.Context, item model.ChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

func (s *MemoryStore) ListMappings(ctx context.Context, proposalID string) ([]model.SectionMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owned := make(map[string]bool)
	for _, item := range s.itemsFor(proposalID) {
		owned[item.ID] = true
	}
	var out []model.SectionMapping
	for key, m := range s.mappings {
		if owned[key.itemID] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChecklistItemID != out[j].ChecklistItemID {
			return out[i].ChecklistItemID < out[j].ChecklistItemID
		}
		return out[i].SectionID < out[j].SectionID
	})
	return out, nil
}

func (s *MemoryStore) CreateMappingIfAbsent(ctx context.Context, m model.SectionMapping) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mappingKey{m.ChecklistItemID, m.SectionID}
	if _, exists := s.mappings[key]; exists {
		return false, nil
	}
	s.mappings[key] = m
	return true, nil
}

func (s *MemoryStore) SetManualMapping(ctx context.Context, itemID, sectionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[itemID]; !ok {
		return fmt.Errorf("checklist item %s: %w", itemID, ErrNotFound)
	}
	if _, ok := s.sections[sectionID]; !ok {
		return fmt.Errorf("section %s: %w", sectionID, ErrNotFound)
	}
	for key, m := range s.mappings {
		if key.itemID == itemID && m.MappingType == model.MappingAuto {
			delete(s.mappings, key)
		}
	}
	s.mappings[mappingKey{itemID, sectionID}] = model.SectionMapping{
		ChecklistItemID: itemID,
		SectionID:       sectionID,
		MappingType:     model.MappingManual,
		Confidence:      1.0,
		CreatedAt:       at,
	}
	return nil
}

func (s *MemoryStore) DeleteMapping(ctx context.Context, itemID, sectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mappingKey{itemID, sectionID}
	if _, ok := s.mappings[key]; !ok {
		return fmt.Errorf("mapping %s/%s: %w", itemID, sectionID, ErrNotFound)
	}
	delete(s.mappings, key)
	return nil
}

func (s *MemoryStore) PutVerificationAttestation(ctx context.Context, a model.VerificationAttestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications[a.SectionID] = append(s.verifications[a.SectionID], a)
	return nil
}

func (s *MemoryStore) ListVerificationAttestations(ctx context.Context, sectionID string) ([]model.VerificationAttestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.VerificationAttestation(nil), s.verifications[sectionID]...), nil
}

func (s *MemoryStore) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.audit[rec.ID]; exists {
		return fmt.Errorf("audit record %s: %w", rec.ID, ErrConflict)
	}
	s.audit[rec.ID] = rec
	s.auditOrder = append(s.auditOrder, rec.ID)
	return nil
}

func (s *MemoryStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.audit[id]
	if !ok {
		return nil, fmt.Errorf("audit record %s: %w", id, ErrNotFound)
	}
	return &rec, nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, proposalID string) ([]model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AuditRecord
	for _, id := range s.auditOrder {
		if rec := s.audit[id]; rec.ProposalID == proposalID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Attest(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.audit[id]
	if !ok {
		return nil, fmt.Errorf("audit record %s: %w", id, ErrNotFound)
	}
	if rec.State != model.StateWarnNeedsAttestation {
		return nil, fmt.Errorf("audit record %s is %s: %w", id, rec.State, ErrConflict)
	}
	t := at
	rec.State = model.StateWarnAcknowledged
	rec.AttestedAt = &t
	s.audit[id] = rec
	return &rec, nil
}

func (s *MemoryStore) MarkFinalized(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.audit[id]
	if !ok {
		return nil, fmt.Errorf("audit record %s: %w", id, ErrNotFound)
	}
	if !rec.State.Exportable() || rec.FinalizedAt != nil {
		return nil, fmt.Errorf("audit record %s is %s: %w", id, rec.State, ErrConflict)
	}
	t := at
	rec.FinalizedAt = &t
	s.audit[id] = rec
	return &rec, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
