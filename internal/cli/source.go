package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/sourcerel"
)

var forceRefresh bool

// sourceCmd represents the source command
var sourceCmd = &cobra.Command{
	Use:   "source <domain>...",
	Short: "Evaluate the reliability of one or more source domains",
	Long: `Source scores how reliable a domain is as a factual source.

Scores are cached; a cached, unexpired score is returned without calling a
model. Platform hosts and disposable domains get the neutral default.

Example:
  factlens source reuters.com
  factlens source https://www.example.org/some/page --refresh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSource,
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.Flags().BoolVar(&forceRefresh, "refresh", false, "discard any cached score and re-evaluate")
}

func runSource(cmd *cobra.Command, args []string) error {
	cfg, logger, err := runConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg.SourceReliability.Enabled = true
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	var failed int
	for _, arg := range args {
		if forceRefresh {
			if err := a.evaluator.Forget(cmd.Context(), arg); err != nil {
				logger.Warn("could not drop cached score", zap.String("domain", arg), zap.Error(err))
			}
		}
		score, err := a.evaluator.Evaluate(cmd.Context(), arg, "")
		if err != nil {
			failed++
			logger.Warn("source evaluation failed", zap.String("domain", arg), zap.Error(err))
			if errors.Is(err, sourcerel.ErrInvalidDomain) {
				continue
			}
		}
		if err := enc.Encode(score); err != nil {
			return fmt.Errorf("encode score: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d evaluations failed", failed, len(args))
	}
	return nil
}
