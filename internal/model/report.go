package model

import "time"

// Decision is the verdict of one gate evaluation
type Decision string

const (
	DecisionBlock Decision = "BLOCK"
	DecisionWarn  Decision = "WARN"
	DecisionAllow Decision = "ALLOW"
)

// GateState is the state machine position of an audit record.
// PENDING -> {BLOCK, WARN_NEEDS_ATTESTATION, WARN_ADVISORY, ALLOW};
// WARN_NEEDS_ATTESTATION -> WARN_ACKNOWLEDGED via attestation.
type GateState string

const (
	StatePending              GateState = "PENDING"
	StateBlock                GateState = "BLOCK"
	StateWarnNeedsAttestation GateState = "WARN_NEEDS_ATTESTATION"
	StateWarnAcknowledged     GateState = "WARN_ACKNOWLEDGED"
	StateWarnAdvisory         GateState = "WARN_ADVISORY"
	StateAllow                GateState = "ALLOW"
)

// Exportable reports whether a record in this state may be finalized
func (s GateState) Exportable() bool {
	switch s {
	case StateAllow, StateWarnAdvisory, StateWarnAcknowledged:
		return true
	case StatePending, StateBlock, StateWarnNeedsAttestation:
		return false
	default:
		return false
	}
}

// RuleID names a gate rule
type RuleID string

const (
	RuleBlockingPlaceholder  RuleID = "PLACEHOLDER_BLOCKING"
	RuleMissingRequiredItem  RuleID = "CHECKLIST_MISSING_REQUIRED"
	RuleHighRiskUnverified   RuleID = "CLAIM_HIGH_RISK_UNVERIFIED"
	RuleLowCoverage          RuleID = "GROUNDING_LOW_COVERAGE"
	RuleLowConfidenceMapping RuleID = "CHECKLIST_LOW_CONFIDENCE_MAPPING"
)

// Severity indicates the importance of a warning
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Block is one reason export cannot proceed
type Block struct {
	RuleID        RuleID   `json:"rule_id"`
	Reason        string   `json:"reason"`
	AffectedItems []string `json:"affected_items"`
	Resolution    string   `json:"resolution"`
}

// Warning is one advisory or attestation-requiring condition
type Warning struct {
	RuleID        RuleID                 `json:"rule_id"`
	Message       string                 `json:"message"`
	Severity      Severity               `json:"severity"`
	AffectedItems []string               `json:"affected_items"`
	Data          map[string]interface{} `json:"data,omitempty"` // Transparent inputs (thresholds, scores)
}

// EvaluateRequest is the gate evaluation input
type EvaluateRequest struct {
	ProposalID   string `json:"proposal_id" binding:"required"`
	UserID       string `json:"user_id" binding:"required"`
	ExportFormat string `json:"export_format" binding:"required"`
}

// GateResult is the gate evaluation output
type GateResult struct {
	Decision            Decision  `json:"decision"`
	State               GateState `json:"state"`
	Blocks              []Block   `json:"blocks"`
	Warnings            []Warning `json:"warnings"`
	AttestationRequired bool      `json:"attestation_required"`
	AttestationText     string    `json:"attestation_text,omitempty"`
	AuditRecordID       string    `json:"audit_record_id"`

	Signals *GateSignals `json:"signals,omitempty"` // Inputs the decision was derived from
}

// GateSignals are the fused inputs of one evaluation
type GateSignals struct {
	Placeholders PlaceholderSummary  `json:"placeholders"`
	Claims       ClaimSummary        `json:"claims"`
	Coverage     []SectionCoverage   `json:"coverage"`
	Checklist    ChecklistValidation `json:"checklist"`
}

// AuditRecord is the append-only ExportAuditLog row for one evaluation
type AuditRecord struct {
	ID              string     `json:"id"`
	ProposalID      string     `json:"proposal_id"`
	UserID          string     `json:"user_id"`
	ExportFormat    string     `json:"export_format"`
	Decision        Decision   `json:"decision"`
	State           GateState  `json:"state"`
	PrimaryRuleID   RuleID     `json:"primary_rule_id,omitempty"`
	BlocksJSON      string     `json:"blocks_json"`
	WarningsJSON    string     `json:"warnings_json"`
	Fingerprint     string     `json:"fingerprint"`                // Content + mapping hash at evaluation time
	ClaimKeys       []string   `json:"claim_keys,omitempty"`       // High-risk unverified claims the attestation covers
	AttestationText string     `json:"attestation_text,omitempty"` // Issued text; confirmed when AttestedAt is set
	AttestedAt      *time.Time `json:"attested_at,omitempty"`
	FinalizedAt     *time.Time `json:"finalized_at,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// IsAttested reports whether the attestation was submitted
func (r AuditRecord) IsAttested() bool {
	return r.AttestedAt != nil
}
