package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// Analyzer runs one analysis
type Analyzer interface {
	Analyze(ctx context.Context, input model.Input) (*model.Report, error)
}

// BatchResult pairs an input with its report or error
type BatchResult struct {
	Input  model.Input
	Report *model.Report
	Error  error
}

// BatchProcessor analyzes multiple inputs concurrently
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(analyzer Analyzer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
}

// Process analyzes inputs concurrently. Results keep the input order.
func (b *BatchProcessor) Process(ctx context.Context, inputs []model.Input) []*BatchResult {
	if len(inputs) == 0 {
		return []*BatchResult{}
	}

	tasks := make([]Task[*model.Report], len(inputs))
	for i, input := range inputs {
		tasks[i] = func(ctx context.Context) (*model.Report, error) {
			return b.analyzer.Analyze(ctx, input)
		}
	}

	outcomes := Run(ctx, b.concurrency, tasks)

	results := make([]*BatchResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = &BatchResult{Input: inputs[i], Report: o.Value, Error: o.Err}
	}
	return results
}

// ProcessFile reads inputs from a file and analyzes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*BatchResult, error) {
	inputs, err := ReadInputsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}

	return b.Process(ctx, inputs), nil
}

// ReadInputsFromFile reads one input per line. Lines may be URLs, questions
// or claims; blank lines, # comments and duplicates are skipped.
func ReadInputsFromFile(filePath string) ([]model.Input, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var inputs []model.Input
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			inputs = append(inputs, model.NewInput(line))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return inputs, nil
}
