package model

import "time"

// PlaceholderType classifies content the generator could not fill in
type PlaceholderType string

const (
	PlaceholderMissingData        PlaceholderType = "MISSING_DATA"        // Data the organization never supplied
	PlaceholderVerificationNeeded PlaceholderType = "VERIFICATION_NEEDED" // Text written but not confirmed
	PlaceholderUserInputRequired  PlaceholderType = "USER_INPUT_REQUIRED" // Optional user detail, dismissible
)

// ParsePlaceholderType returns the type for s and whether it is one of the three known values
func ParsePlaceholderType(s string) (PlaceholderType, bool) {
	switch PlaceholderType(s) {
	case PlaceholderMissingData, PlaceholderVerificationNeeded, PlaceholderUserInputRequired:
		return PlaceholderType(s), true
	default:
		return "", false
	}
}

// Blocking reports whether an unresolved placeholder of this type blocks export
func (t PlaceholderType) Blocking() bool {
	switch t {
	case PlaceholderMissingData, PlaceholderVerificationNeeded:
		return true
	case PlaceholderUserInputRequired:
		return false
	default:
		return false
	}
}

// Dismissible reports whether the placeholder may be dismissed instead of resolved
func (t PlaceholderType) Dismissible() bool {
	return t == PlaceholderUserInputRequired
}

// PlaceholderStatus is the lifecycle state of a stored placeholder
type PlaceholderStatus string

const (
	PlaceholderUnresolved PlaceholderStatus = "UNRESOLVED"
	PlaceholderResolved   PlaceholderStatus = "RESOLVED"
	PlaceholderDismissed  PlaceholderStatus = "DISMISSED"
)

// Placeholder is unique per (SectionID, ID)
type Placeholder struct {
	SectionID   string            `json:"section_id"`
	ID          string            `json:"id"`
	Type        PlaceholderType   `json:"type"`
	Description string            `json:"description"`
	Status      PlaceholderStatus `json:"status"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsBlocking applies the manager's blocking rule without attestation
func (p Placeholder) IsBlocking() bool {
	return p.Status == PlaceholderUnresolved && p.Type.Blocking()
}

// PlaceholderSummary is returned by every scan
type PlaceholderSummary struct {
	Total      int `json:"total"`
	Unresolved int `json:"unresolved"`
	Blocking   int `json:"blocking"`
}

// VerificationAttestation records that a VERIFICATION_NEEDED placeholder was vouched for by a user
type VerificationAttestation struct {
	ID            string    `json:"id"`
	SectionID     string    `json:"section_id"`
	PlaceholderID string    `json:"placeholder_id"`
	UserID        string    `json:"user_id"`
	Statement     string    `json:"statement"`
	AttestedAt    time.Time `json:"attested_at"`
}
