package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records the call and optionally writes an output file the way
// the real engine would.
type fakeRunner struct {
	output   *string
	result   RunResult
	err      error
	panicMsg string

	calls    int
	lastName string
	lastArgs []string
	deadline time.Time
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	f.calls++
	f.lastName = name
	f.lastArgs = args
	f.deadline, _ = ctx.Deadline()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.output != nil {
		if err := os.WriteFile(args[3], []byte(*f.output), 0o644); err != nil {
			return RunResult{}, err
		}
	}
	return f.result, f.err
}

func text(s string) *string { return &s }

func writeImage(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "job.jpg")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newInvoker(t *testing.T, runner Runner) (*Invoker, string) {
	t.Helper()
	resultDir := filepath.Join(t.TempDir(), "results")
	return New(Config{
		BinaryPath: "/usr/local/bin/overflowengine",
		ResultDir:  resultDir,
		Runner:     runner,
		Logger:     logger.NewDiscard(),
	}), resultDir
}

func TestInvoker_Invoke(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		want   domain.Result
	}{
		{
			name:   "covid",
			runner: &fakeRunner{output: text("Detected: COVID-19\n")},
			want:   domain.ResultCovid,
		},
		{
			name:   "h5n1",
			runner: &fakeRunner{output: text("H5N1")},
			want:   domain.ResultH5N1,
		},
		{
			name:   "healthy",
			runner: &fakeRunner{output: text("sample is healthy")},
			want:   domain.ResultHealthy,
		},
		{
			name:   "covid wins over healthy",
			runner: &fakeRunner{output: text("healthy? no: COVID-19")},
			want:   domain.ResultCovid,
		},
		{
			name:   "unrecognised text",
			runner: &fakeRunner{output: text("inconclusive")},
			want:   domain.ResultFailed,
		},
		{
			name:   "empty output file",
			runner: &fakeRunner{output: text("")},
			want:   domain.ResultFailed,
		},
		{
			name:   "no output file",
			runner: &fakeRunner{},
			want:   domain.ResultFailed,
		},
		{
			name:   "non-zero exit with output still classified",
			runner: &fakeRunner{output: text("H5N1"), result: RunResult{ExitCode: 3, Stderr: "warning"}},
			want:   domain.ResultH5N1,
		},
		{
			name:   "timeout with late output still classified",
			runner: &fakeRunner{output: text("healthy"), result: RunResult{ExitCode: -1, TimedOut: true}},
			want:   domain.ResultHealthy,
		},
		{
			name:   "timeout without output",
			runner: &fakeRunner{result: RunResult{ExitCode: -1, TimedOut: true}},
			want:   domain.ResultFailed,
		},
		{
			name:   "spawn failure",
			runner: &fakeRunner{err: errors.New("exec: no such file")},
			want:   domain.ResultFailed,
		},
		{
			name:   "runner panic",
			runner: &fakeRunner{panicMsg: "boom"},
			want:   domain.ResultFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, resultDir := newInvoker(t, tt.runner)
			image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

			got := inv.Invoke(context.Background(), image, "job-1")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, tt.runner.calls)

			absOutput, err := filepath.Abs(filepath.Join(resultDir, "job-1.txt"))
			require.NoError(t, err)
			assert.Equal(t, "/usr/local/bin/overflowengine", tt.runner.lastName)
			assert.Equal(t, []string{"--input", image, "--output", absOutput}, tt.runner.lastArgs)
		})
	}
}

func TestInvoker_MissingImageSkipsEngine(t *testing.T) {
	runner := &fakeRunner{output: text("COVID-19")}
	inv, _ := newInvoker(t, runner)

	got := inv.Invoke(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), "job-2")

	assert.Equal(t, domain.ResultFailed, got)
	assert.Zero(t, runner.calls)
}

func TestInvoker_EmptyImageSkipsEngine(t *testing.T) {
	runner := &fakeRunner{output: text("COVID-19")}
	inv, _ := newInvoker(t, runner)
	image := writeImage(t, t.TempDir(), nil)

	assert.Equal(t, domain.ResultFailed, inv.Invoke(context.Background(), image, "job-3"))
	assert.Zero(t, runner.calls)
}

func TestInvoker_UnwritableOutputSkipsEngine(t *testing.T) {
	runner := &fakeRunner{output: text("COVID-19")}
	blocker := filepath.Join(t.TempDir(), "results")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	inv := New(Config{ResultDir: blocker, Runner: runner, Logger: logger.NewDiscard()})
	image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

	assert.Equal(t, domain.ResultFailed, inv.Invoke(context.Background(), image, "job-4"))
	assert.Zero(t, runner.calls)
}

func TestInvoker_AppliesTimeout(t *testing.T) {
	runner := &fakeRunner{output: text("healthy")}
	inv := New(Config{
		ResultDir: t.TempDir(),
		Timeout:   2 * time.Second,
		Runner:    runner,
		Logger:    logger.NewDiscard(),
	})
	image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

	before := time.Now()
	inv.Invoke(context.Background(), image, "job-5")

	require.False(t, runner.deadline.IsZero())
	assert.WithinDuration(t, before.Add(2*time.Second), runner.deadline, time.Second)
}

func TestNew_Defaults(t *testing.T) {
	inv := New(Config{ResultDir: "results"})
	assert.Equal(t, DefaultTimeout, inv.timeout)
	assert.IsType(t, ExecRunner{}, inv.runner)
	assert.NotNil(t, inv.logger)
	assert.Equal(t, filepath.Join("results", "abc.txt"), inv.OutputPath("abc"))
}

func TestClassifyOutput(t *testing.T) {
	tests := []struct {
		text string
		want domain.Result
	}{
		{"COVID-19", domain.ResultCovid},
		{"result: COVID-19 positive", domain.ResultCovid},
		{"H5N1", domain.ResultH5N1},
		{"healthy", domain.ResultHealthy},
		{"COVID-19 H5N1 healthy", domain.ResultCovid},
		{"H5N1 and healthy", domain.ResultH5N1},
		{"Healthy", domain.ResultFailed},
		{"covid-19", domain.ResultFailed},
		{"h5n1", domain.ResultFailed},
		{"", domain.ResultFailed},
		{"error: model not loaded", domain.ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOutput(tt.text))
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestInvoker_WithExecRunner(t *testing.T) {
	t.Run("engine writes verdict", func(t *testing.T) {
		script := writeScript(t, `echo "COVID-19" > "$4"`+"\n")
		inv := New(Config{BinaryPath: script, ResultDir: t.TempDir(), Logger: logger.NewDiscard()})
		image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

		assert.Equal(t, domain.ResultCovid, inv.Invoke(context.Background(), image, "exec-1"))
	})

	t.Run("engine fails after writing verdict", func(t *testing.T) {
		script := writeScript(t, `echo "healthy" > "$4"`+"\nexit 2\n")
		inv := New(Config{BinaryPath: script, ResultDir: t.TempDir(), Logger: logger.NewDiscard()})
		image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

		assert.Equal(t, domain.ResultHealthy, inv.Invoke(context.Background(), image, "exec-2"))
	})

	t.Run("engine hangs", func(t *testing.T) {
		script := writeScript(t, "sleep 10\n")
		inv := New(Config{
			BinaryPath: script,
			ResultDir:  t.TempDir(),
			Timeout:    200 * time.Millisecond,
			Runner:     ExecRunner{WaitDelay: 200 * time.Millisecond},
			Logger:     logger.NewDiscard(),
		})
		image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

		start := time.Now()
		assert.Equal(t, domain.ResultFailed, inv.Invoke(context.Background(), image, "exec-3"))
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("caller cancellation does not stop the engine", func(t *testing.T) {
		script := writeScript(t, "sleep 0.3\n"+`echo "healthy" > "$4"`+"\n")
		inv := New(Config{
			BinaryPath: script,
			ResultDir:  t.TempDir(),
			Timeout:    30 * time.Second,
			Logger:     logger.NewDiscard(),
		})
		image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		assert.Equal(t, domain.ResultHealthy, inv.Invoke(ctx, image, "exec-5"))
	})

	t.Run("engine binary missing", func(t *testing.T) {
		inv := New(Config{
			BinaryPath: filepath.Join(t.TempDir(), "no-such-engine"),
			ResultDir:  t.TempDir(),
			Logger:     logger.NewDiscard(),
		})
		image := writeImage(t, t.TempDir(), []byte("jpeg bytes"))

		assert.Equal(t, domain.ResultFailed, inv.Invoke(context.Background(), image, "exec-4"))
	})
}

func TestExecRunner_Run(t *testing.T) {
	script := writeScript(t, "echo out\necho err >&2\nexit 7\n")

	res, err := ExecRunner{}.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.TimedOut)

	_, err = ExecRunner{}.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
