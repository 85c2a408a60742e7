package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/proposalgate/internal/pipeline"
)

var checklistJSON string

// checklistCmd represents the checklist command
var checklistCmd = &cobra.Command{
	Use:   "checklist <proposal-id>",
	Short: "Validate funder checklist coverage",
	Long: `Checklist reports which funder requirements are satisfied by a section
with content, which required items are missing, unmapped items, and
auto-mappings whose confidence is low enough to deserve a human look.`,
	Args: cobra.ExactArgs(1),
	RunE: runChecklist,
}

var automapCmd = &cobra.Command{
	Use:   "automap <proposal-id>",
	Short: "Map unmapped checklist items to their best-matching section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, logger, err := openPipeline()
		if err != nil {
			return err
		}
		defer closePipeline(p, logger)

		created, err := p.Gate().Mapper().AutoMap(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("automap failed: %w", err)
		}
		for _, m := range created {
			fmt.Fprintf(os.Stderr, "  ✓ %s → %s (%.2f)\n", m.ChecklistItemID, m.SectionID, m.Confidence)
		}
		fmt.Fprintf(os.Stderr, "Created %d mappings\n", len(created))
		return nil
	},
}

var mapCmd = &cobra.Command{
	Use:   "map <item-id> <section-id>",
	Short: "Manually map a checklist item to a section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMapper(func(ctx context.Context, p *pipeline.Pipeline) error {
			return p.Gate().Mapper().ManualMap(ctx, args[0], args[1])
		})
	},
}

var unmapCmd = &cobra.Command{
	Use:   "unmap <item-id> <section-id>",
	Short: "Remove a checklist mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMapper(func(ctx context.Context, p *pipeline.Pipeline) error {
			return p.Gate().Mapper().Unmap(ctx, args[0], args[1])
		})
	},
}

func init() {
	rootCmd.AddCommand(checklistCmd)
	rootCmd.AddCommand(automapCmd)
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(unmapCmd)

	checklistCmd.Flags().StringVar(&checklistJSON, "json", "", "output JSON path (- for stdout)")
}

func runChecklist(cmd *cobra.Command, args []string) error {
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	v, err := p.Gate().Mapper().Validate(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("checklist failed: %w", err)
	}

	if checklistJSON != "" {
		return pipeline.RenderJSON(os.Stdout, checklistJSON, v)
	}

	fmt.Fprintf(os.Stderr, "Satisfied:         %d\n", len(v.Satisfied))
	for _, name := range v.MissingRequired {
		fmt.Fprintf(os.Stderr, "  ✗ missing required: %s\n", name)
	}
	for _, name := range v.UnmappedItems {
		fmt.Fprintf(os.Stderr, "  - unmapped: %s\n", name)
	}
	for _, m := range v.LowConfidenceMappings {
		fmt.Fprintf(os.Stderr, "  ⚠ %s → %s (%.2f)\n", m.ItemName, m.SectionName, m.Confidence)
	}
	for _, o := range v.OverLimitItems {
		fmt.Fprintf(os.Stderr, "  ⚠ %s in %s: %d %s (max %d)\n", o.ItemName, o.SectionName, o.Actual, o.Limit, o.Max)
	}
	return nil
}

func withMapper(fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	if err := fn(context.Background(), p); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "✓ Done")
	return nil
}
