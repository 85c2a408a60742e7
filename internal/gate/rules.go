package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/placeholder"
)

// Inputs is the persisted state one decision is derived from
type Inputs struct {
	Sections []model.Section

	// Placeholders and VerificationAttested are keyed by section id;
	// the inner attested map is keyed by placeholder id.
	Placeholders         map[string][]model.Placeholder
	VerificationAttested map[string]map[string]bool

	Claims            []model.Claim // ordered by section, then offset
	Coverage          []model.SectionCoverage
	Checklist         model.ChecklistValidation
	AttestedClaimKeys map[string]bool
}

// Outcome is the result of applying the rules to Inputs
type Outcome struct {
	Decision            model.Decision
	State               model.GateState
	Blocks              []model.Block
	Warnings            []model.Warning
	PrimaryRuleID       model.RuleID
	AttestationRequired bool
	AttestationText     string
	ClaimKeys           []string // keys the attestation would cover
}

// Decide applies the rules in precedence order. Every triggered rule is reported;
// the first matching one determines the decision.
func Decide(in Inputs, th model.ThresholdConfig) Outcome {
	out := Outcome{Blocks: []model.Block{}, Warnings: []model.Warning{}}
	names := sectionNames(in.Sections)

	// a. blocking placeholders
	if b, ok := placeholderBlock(in, names); ok {
		out.Blocks = append(out.Blocks, b)
	}

	// b. missing required checklist items
	if len(in.Checklist.MissingRequired) > 0 {
		out.Blocks = append(out.Blocks, model.Block{
			RuleID:        model.RuleMissingRequiredItem,
			Reason:        fmt.Sprintf("%d required checklist item(s) are not covered by any section with content", len(in.Checklist.MissingRequired)),
			AffectedItems: append([]string(nil), in.Checklist.MissingRequired...),
			Resolution:    "Map each item to a section and make sure that section has content",
		})
	}

	// c. high-risk unverified claims not covered by an attestation
	current, pending := highRiskClaims(in.Claims, in.AttestedClaimKeys)
	if len(pending) > 0 {
		affected := make([]string, 0, len(pending))
		for _, c := range pending {
			affected = append(affected, claimLabel(c, names))
		}
		out.Warnings = append(out.Warnings, model.Warning{
			RuleID:        model.RuleHighRiskUnverified,
			Message:       fmt.Sprintf("%d high-risk claim(s) have no supporting evidence and need attestation", len(pending)),
			Severity:      model.SeverityCritical,
			AffectedItems: affected,
			Data: map[string]interface{}{
				"verified_threshold": th.Verified,
				"partial_threshold":  th.Partial,
				"pending":            len(pending),
				"high_risk_total":    len(current),
			},
		})
	}

	// d. low coverage and low-confidence mappings, advisory
	var lowCoverage []string
	for _, cov := range in.Coverage {
		if cov.Score < th.CoverageWarn {
			lowCoverage = append(lowCoverage, fmt.Sprintf("%s (%d%%)", cov.SectionName, cov.Score))
		}
	}
	if len(lowCoverage) > 0 {
		out.Warnings = append(out.Warnings, model.Warning{
			RuleID:        model.RuleLowCoverage,
			Message:       fmt.Sprintf("%d section(s) have grounding coverage below %d%%", len(lowCoverage), th.CoverageWarn),
			Severity:      model.SeverityWarning,
			AffectedItems: lowCoverage,
			Data: map[string]interface{}{
				"coverage_warn": th.CoverageWarn,
				"formula":       "round(100 * (grounded + partial) / paragraphs)",
			},
		})
	}
	if len(in.Checklist.LowConfidenceMappings) > 0 {
		affected := make([]string, 0, len(in.Checklist.LowConfidenceMappings))
		for _, m := range in.Checklist.LowConfidenceMappings {
			affected = append(affected, fmt.Sprintf("%s -> %s (%.2f)", m.ItemName, m.SectionName, m.Confidence))
		}
		out.Warnings = append(out.Warnings, model.Warning{
			RuleID:        model.RuleLowConfidenceMapping,
			Message:       fmt.Sprintf("%d checklist mapping(s) were made with low confidence and should be reviewed", len(affected)),
			Severity:      model.SeverityInfo,
			AffectedItems: affected,
			Data:          map[string]interface{}{"low_mapping_confidence": th.LowMappingConfidence},
		})
	}

	switch {
	case len(out.Blocks) > 0:
		out.Decision, out.State = model.DecisionBlock, model.StateBlock
	case len(pending) > 0:
		out.Decision, out.State = model.DecisionWarn, model.StateWarnNeedsAttestation
		out.AttestationRequired = true
		out.ClaimKeys = claimKeys(current)
		out.AttestationText = AttestationText(current, names)
	case len(out.Warnings) > 0:
		out.Decision, out.State = model.DecisionWarn, model.StateWarnAdvisory
	default:
		out.Decision, out.State = model.DecisionAllow, model.StateAllow
	}

	switch {
	case len(out.Blocks) > 0:
		out.PrimaryRuleID = out.Blocks[0].RuleID
	case len(out.Warnings) > 0:
		out.PrimaryRuleID = out.Warnings[0].RuleID
	}
	return out
}

func placeholderBlock(in Inputs, names map[string]string) (model.Block, bool) {
	var affected []string
	for _, sec := range in.Sections {
		for _, p := range placeholder.Blocking(in.Placeholders[sec.ID], in.VerificationAttested[sec.ID]) {
			affected = append(affected, fmt.Sprintf("%s: %s [%s] (%s)", names[sec.ID], p.Description, p.Type, p.ID))
		}
	}
	if len(affected) == 0 {
		return model.Block{}, false
	}
	return model.Block{
		RuleID:        model.RuleBlockingPlaceholder,
		Reason:        fmt.Sprintf("%d placeholder(s) still need data or verification", len(affected)),
		AffectedItems: affected,
		Resolution:    "Resolve MISSING_DATA placeholders with real values; resolve or attest VERIFICATION_NEEDED placeholders",
	}, true
}

// highRiskClaims returns the distinct high-risk unverified claims and those not yet attested
func highRiskClaims(claims []model.Claim, attested map[string]bool) (current, pending []model.Claim) {
	seen := make(map[string]bool)
	for _, c := range claims {
		if !c.IsHighRiskUnverified() || seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		current = append(current, c)
		if !attested[c.Key()] {
			pending = append(pending, c)
		}
	}
	return current, pending
}

func claimKeys(claims []model.Claim) []string {
	keys := make([]string, 0, len(claims))
	for _, c := range claims {
		keys = append(keys, c.Key())
	}
	sort.Strings(keys)
	return keys
}

func claimLabel(c model.Claim, names map[string]string) string {
	return fmt.Sprintf("%s: %s %q", names[c.SectionID], c.Type, c.Value)
}

// AttestationText is the statement a user must submit verbatim to acknowledge the claims
func AttestationText(claims []model.Claim, names map[string]string) string {
	var b strings.Builder
	b.WriteString("I have reviewed the following high-risk claims that could not be verified against our organization's documents, and I confirm they are accurate:\n")
	for _, c := range claims {
		b.WriteString("- ")
		b.WriteString(claimLabel(c, names))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func sectionNames(sections []model.Section) map[string]string {
	names := make(map[string]string, len(sections))
	for _, s := range sections {
		names[s.ID] = s.Name
	}
	return names
}
