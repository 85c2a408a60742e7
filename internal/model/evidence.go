package model

// EvidenceChunk is one result returned by the retrieval collaborator
type EvidenceChunk struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name,omitempty"`
	MatchedText  string  `json:"matched_text"`
	Similarity   float64 `json:"similarity"` // In [0,1]
	PageNumber   *int    `json:"page_number,omitempty"`
}

// EvidenceMatch is the best chunk attached to a verified or partial claim
type EvidenceMatch struct {
	DocumentID  string  `json:"document_id"`
	MatchedText string  `json:"matched_text"`
	Similarity  float64 `json:"similarity"`
}

// GroundingStatus classifies one paragraph against retrieved evidence
type GroundingStatus string

const (
	GroundingGrounded    GroundingStatus = "GROUNDED"    // similarity >= verified threshold
	GroundingPartial     GroundingStatus = "PARTIAL"     // partial <= similarity < verified
	GroundingUngrounded  GroundingStatus = "UNGROUNDED"  // content plausibly unsupported
	GroundingPlaceholder GroundingStatus = "PLACEHOLDER" // paragraph carries a placeholder token, not retrieved
	GroundingFailed      GroundingStatus = "FAILED"      // retrieval error or empty knowledge base
)

// Covered reports whether the status counts towards the coverage score
func (s GroundingStatus) Covered() bool {
	switch s {
	case GroundingGrounded, GroundingPartial:
		return true
	case GroundingUngrounded, GroundingPlaceholder, GroundingFailed:
		return false
	default:
		return false
	}
}

// ParagraphAttribution is keyed by (SectionID, ParagraphIndex)
type ParagraphAttribution struct {
	SectionID      string          `json:"section_id"`
	ParagraphIndex int             `json:"paragraph_index"`
	Status         GroundingStatus `json:"status"`
	BestSimilarity float64         `json:"best_similarity"`
	Evidence       []EvidenceChunk `json:"evidence,omitempty"`
	Error          string          `json:"error,omitempty"` // Retrieval failure detail for FAILED
}

// SectionCoverage is the grounding result for one section
type SectionCoverage struct {
	SectionID    string                 `json:"section_id"`
	SectionName  string                 `json:"section_name"`
	Score        int                    `json:"score"` // 0-100
	Paragraphs   int                    `json:"paragraphs"`
	Attributions []ParagraphAttribution `json:"attributions"`
}
