package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var importTimeout time.Duration

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Load a proposal bundle into the store",
	Long: `Import reads a YAML or JSON bundle with the proposal, its sections and
the funder checklist, from a local file or an http(s) URL.

Sections that were already exported are left untouched; changing their
content is rejected.

Example:
  proposalgate import proposal.yaml
  proposalgate import https://editor.example.org/export/p1.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().DurationVar(&importTimeout, "timeout", 2*time.Minute, "overall import timeout")
}

func runImport(cmd *cobra.Command, args []string) error {
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()

	bundle, err := p.Import(ctx, args[0])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Imported proposal %s (%d sections, %d checklist items)\n",
		bundle.Proposal.ID, len(bundle.Sections), len(bundle.Checklist))
	return nil
}
