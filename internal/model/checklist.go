package model

import "time"

// ChecklistItem is a requirement parsed from a funding announcement
type ChecklistItem struct {
	ID               string  `json:"id" yaml:"id"`
	ProposalID       string  `json:"proposal_id" yaml:"proposal_id"`
	Name             string  `json:"name" yaml:"name"`
	Description      string  `json:"description,omitempty" yaml:"description,omitempty"`
	IsRequired       bool    `json:"is_required" yaml:"is_required"`
	WordLimit        *int    `json:"word_limit,omitempty" yaml:"word_limit,omitempty"`
	CharLimit        *int    `json:"char_limit,omitempty" yaml:"char_limit,omitempty"`
	PageLimit        *int    `json:"page_limit,omitempty" yaml:"page_limit,omitempty"`
	PointValue       *int    `json:"point_value,omitempty" yaml:"point_value,omitempty"`
	ParserConfidence float64 `json:"parser_confidence" yaml:"parser_confidence"`
	Order            int     `json:"order" yaml:"order"`
}

// MappingType records who created a section mapping
type MappingType string

const (
	MappingAuto   MappingType = "AUTO"
	MappingManual MappingType = "MANUAL"
)

// SectionMapping links a checklist item to a section, unique per (ChecklistItemID, SectionID)
type SectionMapping struct {
	ChecklistItemID string      `json:"checklist_item_id"`
	SectionID       string      `json:"section_id"`
	MappingType     MappingType `json:"mapping_type"`
	Confidence      float64     `json:"confidence"` // In [0,1]; 1.0 for MANUAL
	CreatedAt       time.Time   `json:"created_at"`
}

// MappingRef names a mapping for review output
type MappingRef struct {
	ChecklistItemID string  `json:"checklist_item_id"`
	ItemName        string  `json:"item_name"`
	SectionID       string  `json:"section_id"`
	SectionName     string  `json:"section_name"`
	Confidence      float64 `json:"confidence"`
}

// LimitViolation reports mapped content exceeding an item's limits
type LimitViolation struct {
	ChecklistItemID string `json:"checklist_item_id"`
	ItemName        string `json:"item_name"`
	SectionName     string `json:"section_name"`
	Limit           string `json:"limit"` // "words" or "chars"
	Max             int    `json:"max"`
	Actual          int    `json:"actual"`
}

// ChecklistValidation is the completeness report for a proposal
type ChecklistValidation struct {
	Satisfied             []string         `json:"satisfied"`        // item names
	MissingRequired       []string         `json:"missing_required"` // required items with no satisfied mapping
	UnmappedItems         []string         `json:"unmapped_items"`   // items with no mapping at all
	LowConfidenceMappings []MappingRef     `json:"low_confidence_mappings"`
	OverLimitItems        []LimitViolation `json:"over_limit_items,omitempty"`
}
