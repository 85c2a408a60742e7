package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/proposalgate/internal/model"
)

// RenderJSON writes v as indented JSON to path, or to w when path is "-" or empty
func RenderJSON(w io.Writer, path string, v interface{}) (err error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// RenderMarkdown formats a report for humans
func RenderMarkdown(report *Report) string {
	var b strings.Builder
	r := report.Result

	fmt.Fprintf(&b, "# Export gate: %s\n\n", r.Decision)
	fmt.Fprintf(&b, "- Proposal: `%s`\n", report.ProposalID)
	fmt.Fprintf(&b, "- State: `%s`\n", r.State)
	fmt.Fprintf(&b, "- Audit record: `%s`\n", r.AuditRecordID)
	fmt.Fprintf(&b, "- Evaluated: %s\n\n", report.EvaluatedAt.Format("2006-01-02 15:04:05 MST"))

	if len(r.Blocks) > 0 {
		b.WriteString("## Blocking issues\n\n")
		for _, blk := range r.Blocks {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", blk.RuleID, blk.Reason)
			for _, item := range blk.AffectedItems {
				fmt.Fprintf(&b, "- %s\n", item)
			}
			fmt.Fprintf(&b, "\n**Fix:** %s\n\n", blk.Resolution)
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n", w.RuleID, w.Severity, w.Message)
			for _, item := range w.AffectedItems {
				fmt.Fprintf(&b, "- %s\n", item)
			}
			b.WriteString("\n")
		}
	}

	if r.AttestationRequired {
		b.WriteString("## Attestation required\n\n")
		b.WriteString("Submit this statement verbatim to unlock export:\n\n")
		for _, line := range strings.Split(r.AttestationText, "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n")
	}

	if s := r.Signals; s != nil {
		b.WriteString("## Signals\n\n")
		b.WriteString("| Signal | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Placeholders (unresolved / blocking) | %d / %d |\n", s.Placeholders.Unresolved, s.Placeholders.Blocking)
		fmt.Fprintf(&b, "| Claims verified | %d of %d (%.0f%%) |\n", s.Claims.Verified, s.Claims.Total, 100*s.Claims.VerificationRate)
		fmt.Fprintf(&b, "| High-risk unverified claims | %d |\n", s.Claims.HighRiskUnverified)
		fmt.Fprintf(&b, "| Required items missing | %d |\n", len(s.Checklist.MissingRequired))
		for _, c := range s.Coverage {
			fmt.Fprintf(&b, "| Grounding: %s | %d%% |\n", c.SectionName, c.Score)
		}
		b.WriteString("\n")
	}

	if rem := report.Remediation; rem != nil && rem.Enabled {
		fmt.Fprintf(&b, "## Suggested next steps (%s/%s)\n\n%s\n\n", rem.Provider, rem.Model, rem.Text)
		b.WriteString("_Generated text. It does not change the gate decision._\n")
	}
	return b.String()
}

// RenderSummary prints a short banner to w
func RenderSummary(w io.Writer, report *Report) {
	r := report.Result
	icon := map[model.Decision]string{
		model.DecisionAllow: "✓",
		model.DecisionWarn:  "⚠",
		model.DecisionBlock: "✗",
	}[r.Decision]

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  %s Export gate: %s (%s)\n", icon, r.Decision, r.State)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  Proposal:      %s\n", report.ProposalID)
	fmt.Fprintf(w, "  Audit record:  %s\n", r.AuditRecordID)
	fmt.Fprintf(w, "  Blocks:        %d\n", len(r.Blocks))
	fmt.Fprintf(w, "  Warnings:      %d\n", len(r.Warnings))
	if r.AttestationRequired {
		fmt.Fprintf(w, "  Attestation:   required (proposalgate attest %s)\n", r.AuditRecordID)
	}
	for _, blk := range r.Blocks {
		fmt.Fprintf(w, "  ✗ %s: %s\n", blk.RuleID, blk.Reason)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  ⚠ %s: %s\n", warn.RuleID, warn.Message)
	}
	fmt.Fprintln(w)
}
