// Package placeholder tracks the placeholder tokens the generator leaves in section content.
package placeholder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/markup"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/store"
)

var (
	// ErrNotFound matches any *NotFoundError
	ErrNotFound = errors.New("placeholder not found")

	// ErrInvalidOperation matches any *InvalidOperationError
	ErrInvalidOperation = errors.New("invalid placeholder operation")
)

// NotFoundError is returned when no token with the id exists in current content
type NotFoundError struct {
	SectionID     string
	PlaceholderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("placeholder %s not found in section %s", e.PlaceholderID, e.SectionID)
}

// Is lets errors.Is match ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidOperationError is returned when an operation is not allowed for the placeholder type
type InvalidOperationError struct {
	Op            string
	PlaceholderID string
	Type          model.PlaceholderType
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("cannot %s placeholder %s of type %s", e.Op, e.PlaceholderID, e.Type)
}

// Is lets errors.Is match ErrInvalidOperation
func (e *InvalidOperationError) Is(target error) bool {
	return target == ErrInvalidOperation
}

// Manager persists discovered placeholders and applies resolve/dismiss edits
type Manager struct {
	sections     store.SectionStore
	placeholders store.PlaceholderStore
	logger       *zap.Logger
	now          func() time.Time
}

// NewManager creates a manager over the given stores
func NewManager(sections store.SectionStore, placeholders store.PlaceholderStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sections:     sections,
		placeholders: placeholders,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ScanAndPersist re-parses the section's content and stores the resulting placeholder set.
// Stored placeholders no longer present in content are marked RESOLVED.
func (m *Manager) ScanAndPersist(ctx context.Context, sectionID string) (model.PlaceholderSummary, error) {
	sec, err := m.sections.GetSection(ctx, sectionID)
	if err != nil {
		return model.PlaceholderSummary{}, err
	}
	return m.scan(ctx, sectionID, sec.Content, "")
}

// Resolve replaces every token carrying placeholderID with value, verbatim, then re-scans
func (m *Manager) Resolve(ctx context.Context, sectionID, placeholderID, value string) (model.PlaceholderSummary, error) {
	sec, err := m.editable(ctx, sectionID)
	if err != nil {
		return model.PlaceholderSummary{}, err
	}

	content, n := markup.ReplacePlaceholder(sec.Content, placeholderID, value)
	if n == 0 {
		return model.PlaceholderSummary{}, &NotFoundError{SectionID: sectionID, PlaceholderID: placeholderID}
	}
	if err := m.sections.UpdateContent(ctx, sectionID, content); err != nil {
		return model.PlaceholderSummary{}, fmt.Errorf("resolve %s: %w", placeholderID, err)
	}

	m.logger.Info("placeholder resolved",
		zap.String("section_id", sectionID),
		zap.String("placeholder_id", placeholderID),
		zap.Int("tokens", n))
	return m.scan(ctx, sectionID, content, "")
}

// Dismiss removes a USER_INPUT_REQUIRED token from content and records it as DISMISSED
func (m *Manager) Dismiss(ctx context.Context, sectionID, placeholderID string) (model.PlaceholderSummary, error) {
	sec, err := m.editable(ctx, sectionID)
	if err != nil {
		return model.PlaceholderSummary{}, err
	}

	found := false
	for _, tok := range markup.Placeholders(sec.Content) {
		if tok.ID != placeholderID {
			continue
		}
		found = true
		if !tok.Type.Dismissible() {
			return model.PlaceholderSummary{}, &InvalidOperationError{Op: "dismiss", PlaceholderID: placeholderID, Type: tok.Type}
		}
	}
	if !found {
		return model.PlaceholderSummary{}, &NotFoundError{SectionID: sectionID, PlaceholderID: placeholderID}
	}

	content, _ := markup.ReplacePlaceholder(sec.Content, placeholderID, "")
	if err := m.sections.UpdateContent(ctx, sectionID, content); err != nil {
		return model.PlaceholderSummary{}, fmt.Errorf("dismiss %s: %w", placeholderID, err)
	}

	m.logger.Info("placeholder dismissed",
		zap.String("section_id", sectionID),
		zap.String("placeholder_id", placeholderID))
	return m.scan(ctx, sectionID, content, placeholderID)
}

func (m *Manager) editable(ctx context.Context, sectionID string) (*model.Section, error) {
	sec, err := m.sections.GetSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if sec.IsExported() {
		return nil, fmt.Errorf("section %s: %w", sectionID, store.ErrSectionLocked)
	}
	return sec, nil
}

// scan persists the placeholder set for content. dismissedID, when set, is recorded
// as DISMISSED instead of RESOLVED if it disappeared from content.
func (m *Manager) scan(ctx context.Context, sectionID, content, dismissedID string) (model.PlaceholderSummary, error) {
	existing, err := m.placeholders.ListPlaceholders(ctx, sectionID)
	if err != nil {
		return model.PlaceholderSummary{}, fmt.Errorf("load placeholders: %w", err)
	}
	previous := make(map[string]model.Placeholder, len(existing))
	for _, p := range existing {
		previous[p.ID] = p
	}

	now := m.now()
	seen := make(map[string]bool)
	var next []model.Placeholder

	for _, tok := range markup.Placeholders(content) {
		if seen[tok.ID] {
			continue
		}
		seen[tok.ID] = true

		p := model.Placeholder{
			SectionID:   sectionID,
			ID:          tok.ID,
			Type:        tok.Type,
			Description: tok.Description,
			Status:      model.PlaceholderUnresolved,
			UpdatedAt:   now,
		}
		if prev, ok := previous[tok.ID]; ok && prev.Status == p.Status && prev.Type == p.Type && prev.Description == p.Description {
			p.UpdatedAt = prev.UpdatedAt
		}
		next = append(next, p)
	}

	for _, prev := range existing {
		if seen[prev.ID] {
			continue
		}
		switch {
		case prev.ID == dismissedID:
			prev.Status = model.PlaceholderDismissed
			prev.UpdatedAt = now
		case prev.Status == model.PlaceholderUnresolved:
			prev.Status = model.PlaceholderResolved
			prev.UpdatedAt = now
		}
		next = append(next, prev)
	}

	if err := m.placeholders.ReplacePlaceholders(ctx, sectionID, next); err != nil {
		return model.PlaceholderSummary{}, fmt.Errorf("persist placeholders: %w", err)
	}

	summary := Summarize(next)
	m.logger.Debug("placeholders scanned",
		zap.String("section_id", sectionID),
		zap.Int("total", summary.Total),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("blocking", summary.Blocking))
	return summary, nil
}

// Summarize counts placeholders by lifecycle state
func Summarize(placeholders []model.Placeholder) model.PlaceholderSummary {
	var s model.PlaceholderSummary
	for _, p := range placeholders {
		s.Total++
		if p.Status == model.PlaceholderUnresolved {
			s.Unresolved++
		}
		if p.IsBlocking() {
			s.Blocking++
		}
	}
	return s
}

// Blocking returns the placeholders that block export. A VERIFICATION_NEEDED placeholder
// whose id is in attested no longer blocks; MISSING_DATA always does until resolved.
func Blocking(placeholders []model.Placeholder, attested map[string]bool) []model.Placeholder {
	var out []model.Placeholder
	for _, p := range placeholders {
		if p.Status != model.PlaceholderUnresolved {
			continue
		}
		switch p.Type {
		case model.PlaceholderMissingData:
			out = append(out, p)
		case model.PlaceholderVerificationNeeded:
			if !attested[p.ID] {
				out = append(out, p)
			}
		case model.PlaceholderUserInputRequired:
		}
	}
	return out
}
