package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
)

// DefaultTimeout is the hard limit on one engine run.
const DefaultTimeout = 30 * time.Second

// Verdict markers the engine writes to its output file, in match priority.
const (
	MarkerCovid   = "COVID-19"
	MarkerH5N1    = "H5N1"
	MarkerHealthy = "healthy"
)

// Config holds the Invoker settings
type Config struct {
	BinaryPath string
	ResultDir  string
	Timeout    time.Duration
	Runner     Runner
	Logger     *slog.Logger
}

// Invoker runs the classification engine on a stored image and turns the
// file it writes into a verdict.
//
// The engine is treated as unreliable: its exit status is logged but never
// decides the verdict. Only the output file does.
type Invoker struct {
	binaryPath string
	resultDir  string
	timeout    time.Duration
	runner     Runner
	logger     *slog.Logger
}

// New creates an Invoker. A zero Timeout means DefaultTimeout and a nil
// Runner means ExecRunner.
func New(cfg Config) *Invoker {
	inv := &Invoker{
		binaryPath: cfg.BinaryPath,
		resultDir:  cfg.ResultDir,
		timeout:    cfg.Timeout,
		runner:     cfg.Runner,
		logger:     cfg.Logger,
	}
	if inv.timeout <= 0 {
		inv.timeout = DefaultTimeout
	}
	if inv.runner == nil {
		inv.runner = ExecRunner{}
	}
	if inv.logger == nil {
		inv.logger = slog.Default()
	}
	return inv
}

// OutputPath returns where the engine is told to write the verdict of jobID.
func (i *Invoker) OutputPath(jobID string) string {
	return filepath.Join(i.resultDir, jobID+".txt")
}

// Invoke classifies the image at imagePath. It never fails: every problem
// resolves to domain.ResultFailed.
func (i *Invoker) Invoke(ctx context.Context, imagePath, jobID string) (result domain.Result) {
	logger := i.logger.With(slog.String("request_id", jobID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Engine invocation panicked", slog.Any("panic", r))
			result = domain.ResultFailed
		}
	}()

	result, err := i.invoke(ctx, logger, imagePath, jobID)
	if err != nil {
		logger.Error("Engine invocation failed", slog.String("error", err.Error()))
		return domain.ResultFailed
	}
	return result
}

func (i *Invoker) invoke(ctx context.Context, logger *slog.Logger, imagePath, jobID string) (domain.Result, error) {
	absImage, err := filepath.Abs(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve image path: %w", err)
	}
	absOutput, err := filepath.Abs(i.OutputPath(jobID))
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}

	info, err := os.Stat(absImage)
	if err != nil {
		return "", fmt.Errorf("image not readable: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("image %s is empty", absImage)
	}

	if err := ensureWritable(filepath.Dir(absOutput)); err != nil {
		return "", err
	}

	logger.Info("Running classification engine",
		slog.String("binary", i.binaryPath),
		slog.String("input", absImage),
		slog.String("output", absOutput),
		slog.Int64("image_size", info.Size()),
	)

	// Only the engine timeout bounds the run, not the caller.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()

	start := time.Now()
	run, err := i.runner.Run(runCtx, i.binaryPath, "--input", absImage, "--output", absOutput)
	if err != nil {
		return "", err
	}

	attrs := []any{
		slog.Int("exit_code", run.ExitCode),
		slog.Duration("duration", time.Since(start)),
	}
	if run.Stdout != "" {
		attrs = append(attrs, slog.String("stdout", run.Stdout))
	}
	if run.Stderr != "" {
		attrs = append(attrs, slog.String("stderr", run.Stderr))
	}
	switch {
	case run.TimedOut:
		logger.Warn("Classification engine timed out, checking for output anyway",
			append(attrs, slog.Duration("timeout", i.timeout))...)
	case run.ExitCode != 0:
		logger.Warn("Classification engine exited non-zero, checking for output anyway", attrs...)
	default:
		logger.Debug("Classification engine finished", attrs...)
	}

	text, err := os.ReadFile(absOutput)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Classification engine produced no output file",
				slog.String("output", absOutput),
			)
			return domain.ResultFailed, nil
		}
		return "", fmt.Errorf("failed to read engine output: %w", err)
	}

	verdict := ClassifyOutput(string(text))
	if verdict == domain.ResultFailed {
		logger.Warn("Unrecognised engine output",
			slog.String("text", strings.TrimSpace(string(text))),
		)
	} else {
		logger.Info("Classification engine verdict", slog.String("result", string(verdict)))
	}

	return verdict, nil
}

// ClassifyOutput maps engine output text to a verdict. The first marker found
// in the order COVID-19, H5N1, healthy wins; anything else is failed.
func ClassifyOutput(text string) domain.Result {
	switch {
	case strings.Contains(text, MarkerCovid):
		return domain.ResultCovid
	case strings.Contains(text, MarkerH5N1):
		return domain.ResultH5N1
	case strings.Contains(text, MarkerHealthy):
		return domain.ResultHealthy
	default:
		return domain.ResultFailed
	}
}

// ensureWritable creates dir if needed and checks a file can be created in it.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output directory %s not usable: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
