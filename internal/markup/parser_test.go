package markup

import (
	"strings"
	"testing"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ScenarioA(t *testing.T) {
	text := "Revenue grew 40%. [[PLACEHOLDER:MISSING_DATA:Total budget:ph1]]"

	tokens := Parse(text)
	require.Len(t, tokens, 1)

	tok := tokens[0]
	assert.Equal(t, KindPlaceholder, tok.Kind)
	assert.Equal(t, model.PlaceholderMissingData, tok.Type)
	assert.Equal(t, "ph1", tok.ID)
	assert.Equal(t, "Total budget", tok.Description)
	assert.Equal(t, text[tok.Start:tok.End], tok.Raw)
}

func TestParse_OrderedMixedTokens(t *testing.T) {
	text := "We served families {{cite:2}} in [[PLACEHOLDER:USER_INPUT_REQUIRED:county name:c_1]] since {{cite:1}}."

	tokens := Parse(text)
	require.Len(t, tokens, 3)
	assert.Equal(t, KindCitation, tokens[0].Kind)
	assert.Equal(t, 2, tokens[0].Index)
	assert.Equal(t, KindPlaceholder, tokens[1].Kind)
	assert.Equal(t, "c_1", tokens[1].ID)
	assert.Equal(t, KindCitation, tokens[2].Kind)
	assert.Equal(t, 1, tokens[2].Index)

	for i := 1; i < len(tokens); i++ {
		assert.Less(t, tokens[i-1].Start, tokens[i].Start)
	}
}

func TestParse_MalformedIsPlainText(t *testing.T) {
	malformed := []string{
		"[[PLACEHOLDER:MISSING_DATA:ph1]]",       // missing a field
		"[[PLACEHOLDER:UNKNOWN_TYPE:desc:ph1]]",  // unknown type
		"[[PLACEHOLDER:MISSING_DATA:a:b:ph1]]",   // colon in description
		"[[PLACEHOLDER:MISSING_DATA:desc:ph-1]]", // bad id character
		"[[PLACEHOLDER:MISSING_DATA:desc:ph1]",   // unterminated
		"[[placeholder:MISSING_DATA:desc:ph1]]",  // wrong case
		// not positive integers
		"{{cite:0}}", "{{cite:-1}}", "{{cite:x}}", "{{cite:}}",
	}

	for _, text := range malformed {
		t.Run(text, func(t *testing.T) {
			assert.Empty(t, Parse(text))
			assert.Equal(t, text, Strip(text))
		})
	}
}

func TestStrip(t *testing.T) {
	text := "We raised $2M {{cite:1}} from [[PLACEHOLDER:VERIFICATION_NEEDED:donor:d1]] donors.\n\nSecond paragraph."
	assert.Equal(t, "We raised $2M from donors.\n\nSecond paragraph.", Strip(text))
}

func TestReplacePlaceholder_Verbatim(t *testing.T) {
	text := "Budget: [[PLACEHOLDER:MISSING_DATA:Total budget:ph1]] for FY25."
	tok, ok := FindPlaceholder(text, "ph1")
	require.True(t, ok)

	out, n := ReplacePlaceholder(text, "ph1", "$1,250,000")
	assert.Equal(t, 1, n)
	assert.Equal(t, "Budget: $1,250,000 for FY25.", out)
	assert.True(t, strings.HasPrefix(out[tok.Start:], "$1,250,000"))
	assert.Empty(t, Placeholders(out))
}

func TestReplacePlaceholder_OnlyMatchingID(t *testing.T) {
	text := "[[PLACEHOLDER:MISSING_DATA:a:one]] and [[PLACEHOLDER:MISSING_DATA:b:two]]"

	out, n := ReplacePlaceholder(text, "two", "2")
	assert.Equal(t, 1, n)
	assert.Equal(t, "[[PLACEHOLDER:MISSING_DATA:a:one]] and 2", out)

	same, n := ReplacePlaceholder(text, "three", "3")
	assert.Zero(t, n)
	assert.Equal(t, text, same)
}

func TestDanglingCitations(t *testing.T) {
	tokens := Parse("a {{cite:1}} b {{cite:4}} c {{cite:4}} d {{cite:3}}")
	assert.Equal(t, []int{4, 3}, DanglingCitations(tokens, 2))
	assert.Empty(t, DanglingCitations(tokens, 4))
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, HasPlaceholder("x [[PLACEHOLDER:USER_INPUT_REQUIRED:name:n]] y"))
	assert.False(t, HasPlaceholder("x {{cite:1}} y"))
}
