package model

import "time"

// Proposal is the unit the export gate evaluates
type Proposal struct {
	ID             string `json:"id" yaml:"id"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"` // Scopes retrieval to the owning organization's knowledge base
	Title          string `json:"title" yaml:"title"`
}

// Section is one named part of a proposal
type Section struct {
	ID               string     `json:"id"`
	ProposalID       string     `json:"proposal_id"`
	Name             string     `json:"name"`
	Order            int        `json:"order"`
	Content          string     `json:"content"`                     // Current, possibly user-edited text
	GeneratedContent string     `json:"generated_content,omitempty"` // Last AI output
	Citations        []Citation `json:"citations,omitempty"`         // 1-indexed list referenced by {{cite:N}}
	UpdatedAt        time.Time  `json:"updated_at"`
	ExportedAt       *time.Time `json:"exported_at,omitempty"` // Set once exported; content is immutable afterwards
}

// IsExported reports whether the section has left the system
func (s Section) IsExported() bool {
	return s.ExportedAt != nil
}

// Citation is one entry of the citation list supplied alongside section content
type Citation struct {
	DocumentID   string `json:"document_id" yaml:"document_id"`
	DocumentName string `json:"document_name,omitempty" yaml:"document_name,omitempty"`
	PageNumber   *int   `json:"page_number,omitempty" yaml:"page_number,omitempty"`
}
