package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/store"
)

// Bundle is a proposal with its sections and funder checklist, as exchanged
// with the editor. YAML and JSON are both accepted.
type Bundle struct {
	Proposal  model.Proposal        `yaml:"proposal"`
	Sections  []BundleSection       `yaml:"sections"`
	Checklist []model.ChecklistItem `yaml:"checklist"`
}

// BundleSection is one section entry of a bundle
type BundleSection struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Content   string           `yaml:"content"`
	Citations []model.Citation `yaml:"citations"`
}

// ParseBundle decodes and checks a bundle. Section order follows the file.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Proposal.ID == "" {
		return nil, fmt.Errorf("invalid bundle: proposal.id is required")
	}

	seen := make(map[string]bool)
	for i, s := range b.Sections {
		if s.ID == "" {
			return nil, fmt.Errorf("invalid bundle: section %d has no id", i+1)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("invalid bundle: duplicate section id %s", s.ID)
		}
		seen[s.ID] = true
	}

	seen = make(map[string]bool)
	for i := range b.Checklist {
		item := &b.Checklist[i]
		if item.ID == "" || item.Name == "" {
			return nil, fmt.Errorf("invalid bundle: checklist item %d needs id and name", i+1)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("invalid bundle: duplicate checklist item id %s", item.ID)
		}
		seen[item.ID] = true
		item.ProposalID = b.Proposal.ID
		if item.Order == 0 {
			item.Order = i + 1
		}
		if item.ParserConfidence == 0 {
			item.ParserConfidence = 1
		}
	}
	return &b, nil
}

// Import writes the bundle into st. Exported sections are left untouched.
func Import(ctx context.Context, st store.Store, b *Bundle, now time.Time) error {
	if err := st.PutProposal(ctx, b.Proposal); err != nil {
		return fmt.Errorf("put proposal: %w", err)
	}

	for i, s := range b.Sections {
		existing, err := st.GetSection(ctx, s.ID)
		switch {
		case err == nil && existing.IsExported():
			if existing.Content != s.Content {
				return fmt.Errorf("section %s: %w", s.ID, store.ErrSectionLocked)
			}
			continue
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("read section %s: %w", s.ID, err)
		}

		sec := model.Section{
			ID:         s.ID,
			ProposalID: b.Proposal.ID,
			Name:       s.Name,
			Order:      i + 1,
			Content:    s.Content,
			Citations:  s.Citations,
			UpdatedAt:  now,
		}
		if existing != nil {
			sec.GeneratedContent = existing.GeneratedContent
		}
		if err := st.PutSection(ctx, sec); err != nil {
			return fmt.Errorf("put section %s: %w", s.ID, err)
		}
	}

	for _, item := range b.Checklist {
		if err := st.PutChecklistItem(ctx, item); err != nil {
			return fmt.Errorf("put checklist item %s: %w", item.ID, err)
		}
	}
	return nil
}
