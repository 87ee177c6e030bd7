// Package engine adapts an external document converter binary to the
// batch.Converter interface.
//
// The binary is resolved once at construction. Each Convert call runs it
// with the engine configuration expanded into its arguments and
// environment, then inspects the output directory for the markdown file and
// extracted images.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/batch"
	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// DefaultCommand is the converter binary used when none is configured.
const DefaultCommand = "docling"

// ImagesDir is created inside every output directory for extracted images.
const ImagesDir = "images"

// DefaultArgs is the argument template for docling. Placeholders are
// replaced per document; see ExpandArgs.
var DefaultArgs = []string{
	"{input}",
	"--to", "md",
	"--output", "{output}",
	"--device", "{device}",
	"--num-threads", "{threads}",
	"--image-export-mode", "referenced",
}

// ErrNoOutput is returned when the engine exits cleanly but writes no
// markdown file.
var ErrNoOutput = errors.New("engine produced no markdown output")

// runFunc executes the engine and returns its captured output.
type runFunc func(ctx context.Context, name string, args, env []string) (stdout, stderr []byte, err error)

// CommandConverter runs one engine process per document.
type CommandConverter struct {
	path string
	cfg  batch.EngineConfig
	run  runFunc
	log  *logging.Logger
}

// New resolves the engine binary. A binary that cannot be found is an
// initialization error.
func New(cfg batch.EngineConfig) (*CommandConverter, error) {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("locating engine %q: %w", cfg.Command, err)
	}

	c := &CommandConverter{
		path: path,
		cfg:  cfg,
		run:  execRun,
		log:  logging.Get("engine"),
	}
	c.log.Debug("engine ready",
		"path", path,
		"device", cfg.Device,
		"threads", cfg.Threads,
		"batch_size", cfg.BatchSize)
	return c, nil
}

// Factory is a batch.ConverterFactory backed by New.
func Factory(cfg batch.EngineConfig) (batch.Converter, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the resolved engine binary.
func (c *CommandConverter) Path() string {
	return c.path
}

// Convert runs the engine on source, writing into outputDir.
func (c *CommandConverter) Convert(ctx context.Context, source, outputDir string, progress batch.ProgressFunc) (*types.Result, error) {
	start := time.Now()
	report(progress, 0, "starting")

	if err := os.MkdirAll(filepath.Join(outputDir, ImagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	total := EstimatePages(source)
	report(progress, 0.1, fmt.Sprintf("converting %d pages", total))

	args := ExpandArgs(c.template(), c.cfg, source, outputDir)
	c.log.Debug("running engine", "source", filepath.Base(source), "args", strings.Join(args, " "))

	stdout, stderr, err := c.run(ctx, c.path, args, c.environ())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if line := lastLine(stderr); line != "" {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(c.path), err, line)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(c.path), err)
	}
	report(progress, 0.9, "collecting output")

	md, err := findMarkdown(outputDir, source)
	if err != nil {
		return nil, err
	}

	pages := ParsePages(stdout, stderr)
	if pages == 0 {
		pages = total
	}
	if total < pages {
		total = pages
	}

	report(progress, 1, "done")
	return &types.Result{
		Success:         true,
		SourcePath:      source,
		OutputPath:      md,
		PagesConverted:  pages,
		TotalPages:      total,
		ImagesExtracted: CountImages(outputDir),
		Duration:        time.Since(start),
		Warnings:        warnings(stderr),
		CompletedAt:     time.Now(),
	}, nil
}

func (c *CommandConverter) template() []string {
	if len(c.cfg.Args) > 0 {
		return c.cfg.Args
	}
	args := append([]string(nil), DefaultArgs...)
	if c.cfg.OCR {
		args = append(args, "--ocr")
	} else {
		args = append(args, "--no-ocr")
	}
	if c.cfg.Tables {
		args = append(args, "--tables")
	} else {
		args = append(args, "--no-tables")
	}
	return args
}

func (c *CommandConverter) environ() []string {
	env := os.Environ()
	if c.cfg.Threads > 0 {
		env = append(env, "OMP_NUM_THREADS="+strconv.Itoa(c.cfg.Threads))
	}
	if c.cfg.BatchSize > 0 {
		env = append(env, "DOCSWEEP_BATCH_SIZE="+strconv.Itoa(c.cfg.BatchSize))
	}
	if c.cfg.TableBatchSize > 0 {
		env = append(env, "DOCSWEEP_TABLE_BATCH_SIZE="+strconv.Itoa(c.cfg.TableBatchSize))
	}
	if c.cfg.ChunkSize > 0 {
		env = append(env, "DOCSWEEP_CHUNK_SIZE="+strconv.Itoa(c.cfg.ChunkSize))
	}
	if c.cfg.MemoryCeiling > 0 {
		env = append(env, "DOCSWEEP_MEMORY_CEILING_MB="+strconv.FormatInt(megabytes(c.cfg.MemoryCeiling), 10))
	}
	return env
}

func megabytes(n int64) int64 {
	return n / types.MiB
}

// ExpandArgs replaces the placeholders {input}, {output}, {device},
// {threads}, {batch}, {table_batch} and {memory} (the memory ceiling in
// MiB, empty when unset) in each template argument.
func ExpandArgs(template []string, cfg batch.EngineConfig, source, outputDir string) []string {
	device := cfg.Device
	if device == "" {
		device = "cpu"
	}
	var memory string
	if cfg.MemoryCeiling > 0 {
		memory = strconv.FormatInt(megabytes(cfg.MemoryCeiling), 10)
	}
	r := strings.NewReplacer(
		"{input}", source,
		"{output}", outputDir,
		"{device}", device,
		"{threads}", strconv.Itoa(max(cfg.Threads, 1)),
		"{batch}", strconv.Itoa(max(cfg.BatchSize, 1)),
		"{table_batch}", strconv.Itoa(max(cfg.TableBatchSize, 1)),
		"{memory}", memory,
	)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = r.Replace(arg)
	}
	return out
}

func execRun(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func report(progress batch.ProgressFunc, fraction float64, message string) {
	if progress != nil {
		progress(fraction, message)
	}
}

// findMarkdown returns <outputDir>/<stem>.md, or the first .md file in
// outputDir when the engine names its output differently.
func findMarkdown(outputDir, source string) (string, error) {
	want := batch.MarkdownPath(outputDir, source)
	if _, err := os.Stat(want); err == nil {
		return want, nil
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("reading output directory: %w", err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			return filepath.Join(outputDir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoOutput, outputDir)
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func warnings(stderr []byte) []string {
	var out []string
	for _, line := range strings.Split(string(stderr), "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(strings.ToUpper(line), "WARNING") {
			out = append(out, line)
		}
	}
	return out
}
