package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/proposalgate/internal/model"
)

// claimPattern binds a claim type to the expressions that recognize it
type claimPattern struct {
	claimType model.ClaimType
	patterns  []*regexp.Regexp
	exclusive bool // exclusive types never overlap each other; the earlier type wins
}

// ClaimExtractor extracts typed factual claims from section text
type ClaimExtractor struct {
	patterns []claimPattern
	window   int
}

const monthNames = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

const orgSuffixes = `Foundation|Institute|University|Association|Council|Center|Centre|Agency|Trust|Fund|Corporation|Coalition|Alliance|Network|Society|Hospital|College|Bank|Inc\.?|LLC`

// NewClaimExtractor creates a claim extractor with the given context window (runes on each side)
func NewClaimExtractor(window int) *ClaimExtractor {
	if window <= 0 {
		window = 100
	}

	return &ClaimExtractor{
		window: window,
		patterns: []claimPattern{
			{
				claimType: model.ClaimCurrency,
				exclusive: true,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)(?:US)?\$\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?(?:\s?(?:million|billion|thousand)\b|[mkb]\b)?`),
					regexp.MustCompile(`(?i)\b(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?\s?(?:million\s|billion\s|thousand\s)?(?:dollars|usd)\b`),
				},
			},
			{
				claimType: model.ClaimPercentage,
				exclusive: true,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:%|percent\b|per cent\b)`),
				},
			},
			{
				claimType: model.ClaimDate,
				exclusive: true,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(?:` + monthNames + `)\.?\s+(?:\d{1,2}(?:st|nd|rd|th)?,?\s+)?\d{4}\b`),
					regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
					regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
					regexp.MustCompile(`\bFY\s?\d{2,4}\b`),
					regexp.MustCompile(`\b(?:19|20)\d{2}\b`),
				},
			},
			{
				claimType: model.ClaimNumber,
				exclusive: true,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|\b\d+(?:\.\d+)?\b`),
				},
			},
			{
				claimType: model.ClaimNamedOrg,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`\b(?:[A-Z][A-Za-z&'-]+\s+){1,5}(?:` + orgSuffixes + `)(?:\s+(?:of|for)\s+(?:the\s+)?[A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+){0,3})?`),
					regexp.MustCompile(`\bDepartment\s+of\s+(?:the\s+)?[A-Z][A-Za-z]+(?:\s+(?:and\s+)?[A-Z][A-Za-z]+){0,3}`),
				},
			},
			{
				claimType: model.ClaimOutcome,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(?:resulted in|led to|contributed to|increased|decreased|reduced|improved|grew|expanded|achieved|served|graduated|trained|placed|lowered|doubled|tripled)\b[^.!?\n]{0,80}`),
				},
			},
		},
	}
}

type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Extract returns claims found in content, markup and HTML removed, in text order.
// SectionID, ID, risk and status are left for the verifier.
func (e *ClaimExtractor) Extract(content string) []model.Claim {
	text := PlainText(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var claims []model.Claim
	var taken []span

	for _, cp := range e.patterns {
		for _, re := range cp.patterns {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				s := span{start: loc[0], end: loc[1]}
				value := strings.TrimSpace(text[s.start:s.end])
				if cp.claimType == model.ClaimNamedOrg {
					value = strings.TrimPrefix(value, "The ")
				}
				if value == "" {
					continue
				}
				if cp.exclusive && overlapsAny(s, taken) {
					continue
				}
				if cp.exclusive {
					taken = append(taken, s)
				}

				claims = append(claims, model.Claim{
					Type:    cp.claimType,
					Value:   value,
					Context: e.contextWindow(text, s),
					Offset:  s.start,
				})
			}
		}
	}

	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].Offset < claims[j].Offset
	})

	return dedupeClaims(claims)
}

// contextWindow returns the text around s, e.window runes on each side, whitespace collapsed
func (e *ClaimExtractor) contextWindow(text string, s span) string {
	start := s.start
	for n := 0; n < e.window && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}

	end := s.end
	for n := 0; n < e.window && end < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}

	return strings.Join(strings.Fields(text[start:end]), " ")
}

func overlapsAny(s span, taken []span) bool {
	for _, t := range taken {
		if s.overlaps(t) {
			return true
		}
	}
	return false
}

// dedupeClaims removes duplicate claims of the same type and value
func dedupeClaims(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	var unique []model.Claim

	for _, claim := range claims {
		key := string(claim.Type) + "|" + strings.ToLower(claim.Value)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
