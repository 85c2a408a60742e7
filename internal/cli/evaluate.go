package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/pipeline"
)

var (
	outJSON      string
	outMD        string
	userID       string
	exportFormat string
	explain      bool
	timeout      time.Duration

	attestText     string
	attestTextFile string
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <proposal-id>",
	Short: "Run the export gate for a proposal",
	Long: `Evaluate checks a stored proposal and decides BLOCK, WARN or ALLOW:
- Unresolved MISSING_DATA placeholders block
- Unresolved USER_INPUT_REQUIRED placeholders are listed but do not block
- Unattested VERIFICATION_NEEDED placeholders block
- Missing required checklist items block
- Unverified high-risk claims require a typed attestation
- Low grounding coverage and weak checklist mappings warn

Every evaluation is written to the audit log.

Example:
  proposalgate evaluate p1 --user alice
  proposalgate evaluate p1 --user alice --json report.json --md report.md
  proposalgate evaluate p1 --user alice --explain`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

// attestCmd represents the attest command
var attestCmd = &cobra.Command{
	Use:   "attest <audit-id>",
	Short: "Submit the attestation text for a WARN decision",
	Long: `Attest confirms the exact attestation text issued by a WARN evaluation.
Whitespace differences are ignored; any other difference is rejected.

Example:
  proposalgate attest 6f1c... --text "I confirm ..."
  proposalgate evaluate p1 --user alice --json - | jq -r .result.attestation_text | proposalgate attest 6f1c... --text-file -`,
	Args: cobra.ExactArgs(1),
	RunE: runAttest,
}

// finalizeCmd represents the finalize command
var finalizeCmd = &cobra.Command{
	Use:   "finalize <audit-id>",
	Short: "Finalize an ALLOW or acknowledged WARN decision",
	Long: `Finalize marks the audit record exported and locks the proposal's sections.
It fails when the content or checklist mappings changed since the evaluation.`,
	Args: cobra.ExactArgs(1),
	RunE: runFinalize,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(attestCmd)
	rootCmd.AddCommand(finalizeCmd)

	evaluateCmd.Flags().StringVar(&userID, "user", os.Getenv("USER"), "user requesting the export")
	evaluateCmd.Flags().StringVar(&exportFormat, "format", "pdf", "export format")
	evaluateCmd.Flags().BoolVar(&explain, "explain", false, "attach an LLM remediation narrative (requires llm.provider)")
	evaluateCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (- for stdout)")
	evaluateCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	evaluateCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall evaluation timeout")

	attestCmd.Flags().StringVar(&attestText, "text", "", "attestation text")
	attestCmd.Flags().StringVar(&attestTextFile, "text-file", "", "read attestation text from file (- for stdin)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "Evaluating: %s\n", args[0])
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintln(os.Stderr)
	}

	report, err := p.Evaluate(ctx, model.EvaluateRequest{
		ProposalID:   args[0],
		UserID:       userID,
		ExportFormat: exportFormat,
	}, explain)
	if err != nil {
		return fmt.Errorf("evaluate failed: %w", err)
	}

	if outJSON != "" {
		if err := pipeline.RenderJSON(os.Stdout, outJSON, report); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
	}
	if outMD != "" {
		if err := os.WriteFile(outMD, []byte(pipeline.RenderMarkdown(report)), 0644); err != nil {
			return fmt.Errorf("write Markdown: %w", err)
		}
	}

	// Keep stdout clean when JSON goes there
	pipeline.RenderSummary(os.Stderr, report)
	if report.Remediation != nil && report.Remediation.Text != "" {
		fmt.Fprintln(os.Stderr, report.Remediation.Text)
		fmt.Fprintln(os.Stderr)
	}
	return nil
}

func runAttest(cmd *cobra.Command, args []string) error {
	text, err := readAttestText(os.Stdin)
	if err != nil {
		return err
	}

	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	rec, err := p.Gate().SubmitAttestation(context.Background(), args[0], text)
	if err != nil {
		return fmt.Errorf("attest failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Attestation recorded for %s (%s)\n", rec.ID, rec.State)
	fmt.Fprintf(os.Stderr, "  Next: proposalgate finalize %s\n", rec.ID)
	return nil
}

func readAttestText(stdin io.Reader) (string, error) {
	switch {
	case attestText != "" && attestTextFile != "":
		return "", fmt.Errorf("use either --text or --text-file")
	case attestText != "":
		return attestText, nil
	case attestTextFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case attestTextFile != "":
		data, err := os.ReadFile(attestTextFile)
		if err != nil {
			return "", fmt.Errorf("read attestation file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("--text or --text-file is required")
	}
}

func runFinalize(cmd *cobra.Command, args []string) error {
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	rec, err := p.Gate().Finalize(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("finalize failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Export finalized: proposal %s, audit record %s\n", rec.ProposalID, rec.ID)
	return nil
}
