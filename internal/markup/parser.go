// Package markup recognizes the two token grammars generated section content carries:
//
//	[[PLACEHOLDER:TYPE:description:id]]
//	{{cite:N}}
//
// Parsing is total and side-effect free. Anything that does not match a
// grammar exactly is plain text.
package markup

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/proposalgate/internal/model"
)

// Kind distinguishes token grammars
type Kind int

const (
	KindPlaceholder Kind = iota
	KindCitation
)

func (k Kind) String() string {
	switch k {
	case KindPlaceholder:
		return "placeholder"
	case KindCitation:
		return "citation"
	default:
		return "unknown"
	}
}

// Token is one recognized markup occurrence. Start and End are byte offsets into the parsed text.
type Token struct {
	Kind  Kind
	Start int
	End   int
	Raw   string

	// Placeholder fields
	Type        model.PlaceholderType
	Description string
	ID          string

	// Citation field, 1-indexed
	Index int
}

var (
	placeholderPattern = regexp.MustCompile(`\[\[PLACEHOLDER:(MISSING_DATA|VERIFICATION_NEEDED|USER_INPUT_REQUIRED):([^:\[\]]*):([A-Za-z0-9_]+)\]\]`)
	citationPattern    = regexp.MustCompile(`\{\{cite:([1-9][0-9]*)\}\}`)
)

// Parse returns every token in text ordered left to right
func Parse(text string) []Token {
	tokens := append(Placeholders(text), Citations(text)...)
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Start < tokens[j].Start
	})
	return tokens
}

// Placeholders returns only placeholder tokens, in order
func Placeholders(text string) []Token {
	var tokens []Token
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(text, -1) {
		typ, _ := model.ParsePlaceholderType(text[m[2]:m[3]])
		tokens = append(tokens, Token{
			Kind:        KindPlaceholder,
			Start:       m[0],
			End:         m[1],
			Raw:         text[m[0]:m[1]],
			Type:        typ,
			Description: strings.TrimSpace(text[m[4]:m[5]]),
			ID:          text[m[6]:m[7]],
		})
	}
	return tokens
}

// Citations returns only citation tokens, in order
func Citations(text string) []Token {
	var tokens []Token
	for _, m := range citationPattern.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			// Overflowing indices are plain text
			continue
		}
		tokens = append(tokens, Token{
			Kind:  KindCitation,
			Start: m[0],
			End:   m[1],
			Raw:   text[m[0]:m[1]],
			Index: n,
		})
	}
	return tokens
}

// HasPlaceholder reports whether text contains at least one placeholder token
func HasPlaceholder(text string) bool {
	return placeholderPattern.MatchString(text)
}

// Strip removes every token from text and collapses the whitespace left behind
func Strip(text string) string {
	tokens := Parse(text)
	if len(tokens) == 0 {
		return text
	}

	var buf strings.Builder
	last := 0
	for _, tok := range tokens {
		buf.WriteString(text[last:tok.Start])
		last = tok.End
	}
	buf.WriteString(text[last:])

	return collapseSpaces(buf.String())
}

// ReplacePlaceholder replaces every placeholder token carrying id with value, verbatim.
// It returns the new text and the number of tokens replaced.
func ReplacePlaceholder(text, id, value string) (string, int) {
	tokens := Placeholders(text)

	var buf strings.Builder
	last, replaced := 0, 0
	for _, tok := range tokens {
		if tok.ID != id {
			continue
		}
		buf.WriteString(text[last:tok.Start])
		buf.WriteString(value)
		last = tok.End
		replaced++
	}
	if replaced == 0 {
		return text, 0
	}
	buf.WriteString(text[last:])

	return buf.String(), replaced
}

// FindPlaceholder returns the first placeholder token with id
func FindPlaceholder(text, id string) (Token, bool) {
	for _, tok := range Placeholders(text) {
		if tok.ID == id {
			return tok, true
		}
	}
	return Token{}, false
}

// DanglingCitations returns citation indices outside 1..n, deduplicated in order of appearance
func DanglingCitations(tokens []Token, n int) []int {
	seen := make(map[int]bool)
	var dangling []int
	for _, tok := range tokens {
		if tok.Kind != KindCitation || tok.Index <= n || seen[tok.Index] {
			continue
		}
		seen[tok.Index] = true
		dangling = append(dangling, tok.Index)
	}
	return dangling
}

// collapseSpaces squeezes runs of spaces and tabs but keeps newlines so paragraphs survive
func collapseSpaces(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !prevSpace {
				buf.WriteRune(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		buf.WriteRune(r)
	}
	return strings.TrimSpace(buf.String())
}
