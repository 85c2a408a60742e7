package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/proposalgate/internal/markup"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/pipeline"
)

var (
	verifyStatement string
	verifyUser      string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <section-id>",
	Short: "Rescan a section for placeholders and dangling citations",
	Long: `Scan reparses a section's content and persists the placeholder set:
- Placeholders no longer present are marked RESOLVED
- New placeholders are added as UNRESOLVED
- Citation markers past the end of the section's citation list are reported

Example:
  proposalgate scan s2`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <section-id> <placeholder-id> <value>",
	Short: "Replace a placeholder with text",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlaceholders(func(ctx context.Context, p *pipeline.Pipeline) (model.PlaceholderSummary, error) {
			return p.Gate().Placeholders().Resolve(ctx, args[0], args[1], args[2])
		})
	},
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss <section-id> <placeholder-id>",
	Short: "Remove a USER_INPUT_REQUIRED or VERIFICATION_NEEDED placeholder",
	Long:  `Dismiss deletes the marker from the content. MISSING_DATA placeholders must be resolved instead.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlaceholders(func(ctx context.Context, p *pipeline.Pipeline) (model.PlaceholderSummary, error) {
			return p.Gate().Placeholders().Dismiss(ctx, args[0], args[1])
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <section-id> <placeholder-id>",
	Short: "Attest a VERIFICATION_NEEDED placeholder so it stops blocking export",
	Args:  cobra.ExactArgs(2),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(dismissCmd)
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyUser, "user", os.Getenv("USER"), "user vouching for the content")
	verifyCmd.Flags().StringVar(&verifyStatement, "statement", "", "what was verified (required)")
	_ = verifyCmd.MarkFlagRequired("statement")
}

func runScan(cmd *cobra.Command, args []string) error {
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	ctx := context.Background()
	summary, err := p.Gate().Placeholders().ScanAndPersist(ctx, args[0])
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	printSummary(args[0], summary)

	sec, err := p.Store().GetSection(ctx, args[0])
	if err != nil {
		return err
	}
	for _, idx := range markup.DanglingCitations(markup.Citations(sec.Content), len(sec.Citations)) {
		fmt.Fprintf(os.Stderr, "  ⚠ {{cite:%d}} has no citation (section lists %d)\n", idx, len(sec.Citations))
	}

	placeholders, err := p.Store().ListPlaceholders(ctx, args[0])
	if err != nil {
		return err
	}
	for _, ph := range placeholders {
		if ph.Status != model.PlaceholderUnresolved {
			continue
		}
		mark := " "
		if ph.IsBlocking() {
			mark = "✗"
		}
		fmt.Fprintf(os.Stderr, "  %s %-8s %-22s %s\n", mark, ph.ID, ph.Type, ph.Description)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	if verifyUser == "" {
		return fmt.Errorf("--user is required")
	}
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	a, err := p.Gate().AttestVerification(context.Background(), args[0], args[1], verifyUser, verifyStatement)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ %s attested placeholder %s in section %s\n", a.UserID, a.PlaceholderID, a.SectionID)
	return nil
}

func withPlaceholders(fn func(ctx context.Context, p *pipeline.Pipeline) (model.PlaceholderSummary, error)) error {
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	summary, err := fn(context.Background(), p)
	if err != nil {
		return err
	}
	printSummary("", summary)
	return nil
}

func printSummary(sectionID string, s model.PlaceholderSummary) {
	if sectionID != "" {
		fmt.Fprintf(os.Stderr, "Section %s\n", sectionID)
	}
	fmt.Fprintf(os.Stderr, "  Placeholders:  %d total, %d unresolved, %d blocking\n", s.Total, s.Unresolved, s.Blocking)
}
