package checklist

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/extract"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/store"
)

// Mapper creates AUTO mappings, records MANUAL overrides and validates completeness
type Mapper struct {
	sections      store.SectionStore
	checklist     store.ChecklistStore
	minConfidence float64
	lowConfidence float64
	logger        *zap.Logger
	now           func() time.Time
}

// NewMapper creates a mapper using the mapping thresholds from cfg
func NewMapper(cfg *model.Config, sections store.SectionStore, checklist store.ChecklistStore, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{
		sections:      sections,
		checklist:     checklist,
		minConfidence: cfg.Thresholds.MinMappingConfidence,
		lowConfidence: cfg.Thresholds.LowMappingConfidence,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Candidate is the best section found for an item
type Candidate struct {
	Section    model.Section
	Confidence float64
}

// BestSection returns the highest-scoring section at or above minConfidence.
// Ties go to the earlier section.
func BestSection(item model.ChecklistItem, sections []model.Section, minConfidence float64) (Candidate, bool) {
	var best Candidate
	found := false
	for _, sec := range sections {
		score := Similarity(item.Name, sec.Name)
		if score < minConfidence {
			continue
		}
		if !found || score > best.Confidence {
			best = Candidate{Section: sec, Confidence: score}
			found = true
		}
	}
	return best, found
}

// AutoMap creates an AUTO mapping for every item without a MANUAL one.
// Existing rows are never touched, so repeated runs are idempotent.
// It returns the mappings created by this call.
func (m *Mapper) AutoMap(ctx context.Context, proposalID string) ([]model.SectionMapping, error) {
	items, err := m.checklist.ListChecklistItems(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	sections, err := m.sections.ListSections(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	existing, err := m.checklist.ListMappings(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}

	manual := make(map[string]bool)
	for _, mp := range existing {
		if mp.MappingType == model.MappingManual {
			manual[mp.ChecklistItemID] = true
		}
	}

	created := []model.SectionMapping{}
	for _, item := range items {
		if manual[item.ID] {
			continue
		}
		best, ok := BestSection(item, sections, m.minConfidence)
		if !ok {
			m.logger.Debug("no section matches checklist item",
				zap.String("item", item.Name),
				zap.Float64("min_confidence", m.minConfidence))
			continue
		}

		mapping := model.SectionMapping{
			ChecklistItemID: item.ID,
			SectionID:       best.Section.ID,
			MappingType:     model.MappingAuto,
			Confidence:      best.Confidence,
			CreatedAt:       m.now(),
		}
		inserted, err := m.checklist.CreateMappingIfAbsent(ctx, mapping)
		if err != nil {
			return nil, fmt.Errorf("map %s to %s: %w", item.ID, best.Section.ID, err)
		}
		if inserted {
			created = append(created, mapping)
		}
	}

	m.logger.Debug("auto-mapping complete",
		zap.String("proposal_id", proposalID),
		zap.Int("items", len(items)),
		zap.Int("created", len(created)))
	return created, nil
}

// ManualMap replaces the item's AUTO mappings with a MANUAL mapping to sectionID
func (m *Mapper) ManualMap(ctx context.Context, itemID, sectionID string) error {
	if err := m.checklist.SetManualMapping(ctx, itemID, sectionID, m.now()); err != nil {
		return fmt.Errorf("manual map %s to %s: %w", itemID, sectionID, err)
	}
	return nil
}

// Unmap removes one mapping row
func (m *Mapper) Unmap(ctx context.Context, itemID, sectionID string) error {
	if err := m.checklist.DeleteMapping(ctx, itemID, sectionID); err != nil {
		return fmt.Errorf("unmap %s from %s: %w", itemID, sectionID, err)
	}
	return nil
}

// Validate reports completeness of the proposal against its checklist
func (m *Mapper) Validate(ctx context.Context, proposalID string) (model.ChecklistValidation, error) {
	items, err := m.checklist.ListChecklistItems(ctx, proposalID)
	if err != nil {
		return model.ChecklistValidation{}, fmt.Errorf("list checklist items: %w", err)
	}
	sections, err := m.sections.ListSections(ctx, proposalID)
	if err != nil {
		return model.ChecklistValidation{}, fmt.Errorf("list sections: %w", err)
	}
	mappings, err := m.checklist.ListMappings(ctx, proposalID)
	if err != nil {
		return model.ChecklistValidation{}, fmt.Errorf("list mappings: %w", err)
	}
	return Evaluate(items, sections, mappings, m.lowConfidence), nil
}

// Evaluate is the pure completeness check behind Validate.
// Mappings to sections that no longer exist are ignored.
func Evaluate(items []model.ChecklistItem, sections []model.Section, mappings []model.SectionMapping, lowConfidence float64) model.ChecklistValidation {
	v := model.ChecklistValidation{
		Satisfied:             []string{},
		MissingRequired:       []string{},
		UnmappedItems:         []string{},
		LowConfidenceMappings: []model.MappingRef{},
	}

	byID := make(map[string]model.Section, len(sections))
	for _, s := range sections {
		byID[s.ID] = s
	}
	byItem := make(map[string][]model.SectionMapping)
	for _, mp := range mappings {
		if _, ok := byID[mp.SectionID]; ok {
			byItem[mp.ChecklistItemID] = append(byItem[mp.ChecklistItemID], mp)
		}
	}

	for _, item := range items {
		mapped := byItem[item.ID]
		if len(mapped) == 0 {
			v.UnmappedItems = append(v.UnmappedItems, item.Name)
		}

		satisfied := false
		for _, mp := range mapped {
			sec := byID[mp.SectionID]
			if !hasContent(sec) {
				continue
			}
			satisfied = true

			if mp.MappingType == model.MappingAuto && mp.Confidence < lowConfidence {
				v.LowConfidenceMappings = append(v.LowConfidenceMappings, model.MappingRef{
					ChecklistItemID: item.ID,
					ItemName:        item.Name,
					SectionID:       sec.ID,
					SectionName:     sec.Name,
					Confidence:      mp.Confidence,
				})
			}
			v.OverLimitItems = append(v.OverLimitItems, limitViolations(item, sec)...)
		}

		switch {
		case satisfied:
			v.Satisfied = append(v.Satisfied, item.Name)
		case item.IsRequired:
			v.MissingRequired = append(v.MissingRequired, item.Name)
		}
	}
	return v
}

func hasContent(sec model.Section) bool {
	return strings.TrimSpace(sec.Content) != ""
}

func limitViolations(item model.ChecklistItem, sec model.Section) []model.LimitViolation {
	var out []model.LimitViolation
	if item.WordLimit != nil {
		if words := extract.WordCount(sec.Content); words > *item.WordLimit {
			out = append(out, model.LimitViolation{
				ChecklistItemID: item.ID,
				ItemName:        item.Name,
				SectionName:     sec.Name,
				Limit:           "words",
				Max:             *item.WordLimit,
				Actual:          words,
			})
		}
	}
	if item.CharLimit != nil {
		if chars := utf8.RuneCountInString(extract.PlainText(sec.Content)); chars > *item.CharLimit {
			out = append(out, model.LimitViolation{
				ChecklistItemID: item.ID,
				ItemName:        item.Name,
				SectionName:     sec.Name,
				Limit:           "chars",
				Max:             *item.CharLimit,
				Actual:          chars,
			})
		}
	}
	return out
}
