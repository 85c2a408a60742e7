package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/pipeline"
	"github.com/ppiankov/proposalgate/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchUser    string
	batchFormat  string
	batchExplain bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Evaluate multiple proposals from a file in parallel",
	Long: `Batch runs the export gate for many proposals concurrently:
- Read proposal ids from input file (one per line, # for comments)
- Evaluate with a bounded worker pool
- Write a JSON and Markdown report per proposal

Example:
  proposalgate batch proposals.txt --user alice
  proposalgate batch proposals.txt --concurrency 10 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./proposalgate-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchUser, "user", os.Getenv("USER"), "user requesting the exports")
	batchCmd.Flags().StringVar(&batchFormat, "format", "pdf", "export format")
	batchCmd.Flags().BoolVar(&batchExplain, "explain", false, "attach an LLM remediation narrative to each report")
}

type evaluateJob struct {
	index   int
	p       *pipeline.Pipeline
	req     model.EvaluateRequest
	explain bool
}

type evaluateResult struct {
	index  int
	id     string
	report *pipeline.Report
	err    error
}

func (r *evaluateResult) GetError() error { return r.err }
func (r *evaluateResult) Index() int      { return r.index }

func (j *evaluateJob) Execute(ctx context.Context) worker.Result {
	report, err := j.p.Evaluate(ctx, j.req, j.explain)
	return &evaluateResult{index: j.index, id: j.req.ProposalID, report: report, err: err}
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	if batchUser == "" {
		return fmt.Errorf("--user is required")
	}

	ids, err := readProposalIDs(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Proposalgate Batch Evaluation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Proposals:    %d\n", len(ids))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	jobs := make([]worker.Job, len(ids))
	for i, id := range ids {
		jobs[i] = &evaluateJob{
			index:   i,
			p:       p,
			req:     model.EvaluateRequest{ProposalID: id, UserID: batchUser, ExportFormat: batchFormat},
			explain: batchExplain,
		}
	}

	fmt.Fprintf(os.Stderr, "⚙️  Evaluating proposals with %d workers...\n\n", concurrency)
	results, err := worker.RunBatch(ctx, concurrency, jobs)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	counts := make(map[model.Decision]int)
	failureCount := 0
	for _, r := range results {
		res := r.(*evaluateResult)
		if res.err != nil {
			failureCount++
			logger.Warn("evaluation failed", zap.String("proposal_id", res.id), zap.Error(res.err))
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.id, res.err)
			continue
		}

		slug := sanitizeFilename(res.id)
		if err := pipeline.RenderJSON(nil, filepath.Join(outputDir, slug+".json"), res.report); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", res.id, err)
			continue
		}
		mdPath := filepath.Join(outputDir, slug+".md")
		if err := os.WriteFile(mdPath, []byte(pipeline.RenderMarkdown(res.report)), 0644); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", res.id, err)
			continue
		}

		counts[res.report.Result.Decision]++
		fmt.Fprintf(os.Stderr, "✓ %s: %s (%s)\n", res.id, res.report.Result.Decision, res.report.Result.State)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d proposals\n", len(results))
	fmt.Fprintf(os.Stderr, "  ALLOW:     %d\n", counts[model.DecisionAllow])
	fmt.Fprintf(os.Stderr, "  WARN:      %d\n", counts[model.DecisionWarn])
	fmt.Fprintf(os.Stderr, "  BLOCK:     %d\n", counts[model.DecisionBlock])
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// readProposalIDs reads one id per line, skipping blanks, comments and duplicates
func readProposalIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer func() { _ = f.Close() }()

	seen := make(map[string]bool)
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no proposal ids in %s", path)
	}
	return ids, nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a string for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(s)
	if s == "" || s == "." || s == ".." {
		s = "_"
	}

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
