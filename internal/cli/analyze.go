package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/logging"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/pipeline"
)

var (
	outJSON       string
	outMD         string
	timeout       time.Duration
	noCache       bool
	noFooter      bool
	hardBudget    bool
	deterministic bool
	logJSON       bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <article, question, claim or URL>",
	Short: "Analyze one input and produce per-context verdicts",
	Long: `Analyze detects the analytical contexts in an input, researches each
context on the web, and produces one confidence-gated verdict per context.

The input may be free text, a question, a single claim, or a URL whose
page text is analyzed.

Example:
  factlens analyze "The Golden Gate Bridge opened in 1937"
  factlens analyze https://example.com/article --json report.json --md report.md
  factlens analyze "Was the 2019 ruling overturned?" --deterministic`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (default: <output.dir>/<run id>.json)")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (default: <output.dir>/<run id>.md)")
	analyzeCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	addRunFlags(analyzeCmd)
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall analysis timeout")
}

// addRunFlags registers the flags shared by analyze and batch
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable page cache (force fresh fetch)")
	cmd.Flags().BoolVar(&hardBudget, "hard-budget", false, "abandon research mid-round once the token budget is spent")
	cmd.Flags().BoolVar(&deterministic, "deterministic", false, "temperature 0 and stable ordering for reproducible runs")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "emit JSON logs")
}

// runConfig loads the merged config and applies the run flags over it
func runConfig(cmd *cobra.Command) (model.Config, *zap.Logger, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return cfg, nil, err
	}
	applyRunFlags(cmd, &cfg)

	logger, err := logging.New(verbose, cfg.Output.LogJSON)
	if err != nil {
		return cfg, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func applyRunFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("hard-budget") {
		cfg.Pipeline.HardBudget = hardBudget
	}
	if flags.Changed("deterministic") {
		cfg.Pipeline.Deterministic = deterministic
	}
	if flags.Changed("log-json") {
		cfg.Output.LogJSON = logJSON
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("input is empty")
	}

	cfg, logger, err := runConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	input := model.NewInput(text)
	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing %s input\n", input.Kind)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Cache: %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	report, runErr := a.pipeline.Run(ctx, input, func(percent int, message string) {
		if verbose {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, message)
		}
	})
	if report == nil {
		return fmt.Errorf("analysis failed: %w", runErr)
	}

	renderer := pipeline.NewRenderer(!noFooter)
	jsonPath, mdPath := reportPaths(cfg.Output, report.RunID, outJSON, outMD)
	if err := renderReport(renderer, report, jsonPath, mdPath); err != nil {
		return err
	}

	renderer.RenderSummary(cmd.OutOrStdout(), report)
	if jsonPath != "" {
		fmt.Fprintf(os.Stderr, "JSON report: %s\n", jsonPath)
	}
	if mdPath != "" {
		fmt.Fprintf(os.Stderr, "Markdown report: %s\n", mdPath)
	}

	if runErr != nil {
		return fmt.Errorf("analysis %s: %w", strings.ToLower(string(report.Status)), runErr)
	}
	return nil
}

// reportPaths resolves output paths; explicit flags win over the configured
// output directory
func reportPaths(out model.OutputConfig, runID, jsonFlag, mdFlag string) (string, string) {
	jsonPath, mdPath := jsonFlag, mdFlag
	if jsonPath == "" && out.JSON {
		jsonPath = filepath.Join(out.Dir, runID+".json")
	}
	if mdPath == "" && out.Markdown {
		mdPath = filepath.Join(out.Dir, runID+".md")
	}
	return jsonPath, mdPath
}

func renderReport(r *pipeline.Renderer, report *model.Report, jsonPath, mdPath string) error {
	if jsonPath != "" {
		if err := r.RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
	}
	if mdPath != "" {
		if err := r.RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render Markdown: %w", err)
		}
	}
	return nil
}
