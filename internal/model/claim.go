package model

import (
	"strings"
	"time"
)

// Claim represents a factual assertion extracted from section text
type Claim struct {
	ID        string         `json:"id"`
	SectionID string         `json:"section_id"`
	Type      ClaimType      `json:"type"`
	Value     string         `json:"value"`   // The matched claim text (e.g. "$500,000")
	Context   string         `json:"context"` // Fixed-size window around the match, used as the retrieval query
	Offset    int            `json:"offset"`  // Byte offset of Value in the plain text
	RiskLevel RiskLevel      `json:"risk_level"`
	Status    ClaimStatus    `json:"status"`
	Evidence  *EvidenceMatch `json:"evidence,omitempty"` // Best retrieved chunk, if any
	CheckedAt time.Time      `json:"checked_at"`
}

// Key identifies a claim across verification passes for attestation coverage
func (c Claim) Key() string {
	return c.SectionID + "|" + string(c.Type) + "|" + strings.ToLower(strings.Join(strings.Fields(c.Value), " "))
}

// IsHighRiskUnverified reports whether the claim needs attestation before export
func (c Claim) IsHighRiskUnverified() bool {
	return c.Status == ClaimUnverified && c.RiskLevel == RiskHigh
}

// ClaimType categorizes the nature of the claim
type ClaimType string

const (
	ClaimNumber     ClaimType = "NUMBER"     // Bare numeric literal
	ClaimPercentage ClaimType = "PERCENTAGE" // "40%", "12 percent"
	ClaimCurrency   ClaimType = "CURRENCY"   // "$500,000", "2 million dollars"
	ClaimDate       ClaimType = "DATE"       // "March 2023", "2019", "03/15/2022"
	ClaimNamedOrg   ClaimType = "NAMED_ORG"  // "Gates Foundation", "Department of Health"
	ClaimOutcome    ClaimType = "OUTCOME"    // "resulted in", "reduced ... by"
)

// ClaimTypes lists every claim type in extraction priority order
var ClaimTypes = []ClaimType{ClaimCurrency, ClaimPercentage, ClaimDate, ClaimNumber, ClaimNamedOrg, ClaimOutcome}

// RiskLevel is how damaging an unsupported claim would be
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Valid reports whether r is one of the known levels
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	default:
		return false
	}
}

// ClaimStatus is the verification outcome for a claim
type ClaimStatus string

const (
	ClaimVerified   ClaimStatus = "VERIFIED"   // similarity >= verified threshold
	ClaimPartial    ClaimStatus = "PARTIAL"    // partial <= similarity < verified
	ClaimUnverified ClaimStatus = "UNVERIFIED" // below partial, no result, or retrieval failure
)

// ClaimSummary aggregates verification results for a section or proposal
type ClaimSummary struct {
	Total              int     `json:"total"`
	Verified           int     `json:"verified"`
	Partial            int     `json:"partial"`
	Unverified         int     `json:"unverified"`
	HighRiskUnverified int     `json:"high_risk_unverified"`
	VerificationRate   float64 `json:"verification_rate"` // verified/total, 0 when total is 0
}
