package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/docsweep/pkg/docsweep/batch"
	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

func newTestConverter(cfg batch.EngineConfig, run runFunc) *CommandConverter {
	return &CommandConverter{path: "/usr/bin/docling", cfg: cfg, run: run, log: logging.Get("engine")}
}

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("%PDF-1.7\n1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	b.WriteString("2 0 obj << /Type /Pages /Count 0 >> endobj\n")
	for range pages {
		b.WriteString("obj << /Type /Page /Parent 2 0 R >> endobj\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestNew_MissingBinary(t *testing.T) {
	_, err := New(batch.EngineConfig{Command: "docsweep-no-such-engine-binary"})
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)

	conv, err := Factory(batch.EngineConfig{Command: "docsweep-no-such-engine-binary"})
	assert.Error(t, err)
	assert.Nil(t, conv, "factory returns a nil interface on failure")
}

func TestConvert_Success(t *testing.T) {
	dir := t.TempDir()
	src := writePDF(t, dir, "report.pdf", 4)
	out := batch.OutputDirFor(filepath.Join(dir, "out"), src)

	var gotArgs, gotEnv []string
	conv := newTestConverter(batch.EngineConfig{Device: "cuda", Threads: 6, BatchSize: 32, OCR: true},
		func(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
			gotArgs, gotEnv = args, env
			require.NoError(t, os.WriteFile(filepath.Join(out, "report.md"), []byte("# Report"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(out, ImagesDir, "fig1.png"), []byte{0x89}, 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(out, ImagesDir, "fig2.JPG"), []byte{0xff}, 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(out, ImagesDir, "notes.txt"), nil, 0o644))
			return []byte("Processed 4 pages\n"), []byte("WARNING: table model fell back to cpu\n"), nil
		})

	var fractions []float64
	res, err := conv.Convert(context.Background(), src, out, func(f float64, _ string) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, filepath.Join(out, "report.md"), res.OutputPath)
	assert.Equal(t, 4, res.PagesConverted)
	assert.Equal(t, 4, res.TotalPages)
	assert.Equal(t, 2, res.ImagesExtracted)
	assert.Equal(t, []string{"WARNING: table model fell back to cpu"}, res.Warnings)
	assert.Positive(t, res.Duration)

	assert.Equal(t, src, gotArgs[0])
	assert.Contains(t, gotArgs, "cuda")
	assert.Contains(t, gotArgs, "6")
	assert.Contains(t, gotArgs, "--ocr")
	assert.Contains(t, gotArgs, "--no-tables")
	assert.Contains(t, gotEnv, "OMP_NUM_THREADS=6")
	assert.Contains(t, gotEnv, "DOCSWEEP_BATCH_SIZE=32")

	require.NotEmpty(t, fractions)
	assert.Equal(t, 0.0, fractions[0])
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}

func TestConvert_EstimatesPagesWhenEngineIsSilent(t *testing.T) {
	dir := t.TempDir()
	src := writePDF(t, dir, "scan.pdf", 3)
	out := filepath.Join(dir, "scan_md")

	conv := newTestConverter(batch.EngineConfig{}, func(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
		// engine names the file after itself
		return nil, nil, os.WriteFile(filepath.Join(out, "document.md"), []byte("text"), 0o644)
	})

	res, err := conv.Convert(context.Background(), src, out, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PagesConverted)
	assert.Equal(t, filepath.Join(out, "document.md"), res.OutputPath)
	assert.Zero(t, res.ImagesExtracted)
}

func TestConvert_EngineFailure(t *testing.T) {
	dir := t.TempDir()
	src := writePDF(t, dir, "bad.pdf", 1)
	out := filepath.Join(dir, "bad_md")

	exitErr := errors.New("exit status 2")
	conv := newTestConverter(batch.EngineConfig{}, func(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
		return nil, []byte("loading models\nRuntimeError: corrupt xref table\n"), exitErr
	})

	_, err := conv.Convert(context.Background(), src, out, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, exitErr)
	assert.Contains(t, err.Error(), "corrupt xref table")
}

func TestConvert_NoOutput(t *testing.T) {
	dir := t.TempDir()
	src := writePDF(t, dir, "empty.pdf", 1)

	conv := newTestConverter(batch.EngineConfig{}, func(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
		return nil, nil, nil
	})

	_, err := conv.Convert(context.Background(), src, filepath.Join(dir, "empty_md"), nil)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestConvert_Cancelled(t *testing.T) {
	dir := t.TempDir()
	src := writePDF(t, dir, "slow.pdf", 1)

	ctx, cancel := context.WithCancel(context.Background())
	conv := newTestConverter(batch.EngineConfig{}, func(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
		cancel()
		return nil, nil, errors.New("signal: killed")
	})

	_, err := conv.Convert(ctx, src, filepath.Join(dir, "slow_md"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpandArgs(t *testing.T) {
	cfg := batch.EngineConfig{Device: "mps", Threads: 8, BatchSize: 48, TableBatchSize: 12}
	got := ExpandArgs(
		[]string{"{input}", "-o", "{output}", "--dev={device}", "-t", "{threads}", "--batch", "{batch}", "{table_batch}"},
		cfg, "/in/a.pdf", "/out/a_md")
	assert.Equal(t, []string{"/in/a.pdf", "-o", "/out/a_md", "--dev=mps", "-t", "8", "--batch", "48", "12"}, got)

	got = ExpandArgs([]string{"{device}", "{threads}", "--mem={memory}"}, batch.EngineConfig{}, "", "")
	assert.Equal(t, []string{"cpu", "1", "--mem="}, got, "zero config expands to safe defaults")

	got = ExpandArgs([]string{"--max-memory", "{memory}"}, batch.EngineConfig{MemoryCeiling: 6 * types.GiB}, "", "")
	assert.Equal(t, []string{"--max-memory", "6144"}, got)
}

func TestEnviron_MemoryCeiling(t *testing.T) {
	conv := newTestConverter(batch.EngineConfig{MemoryCeiling: 3 * types.GiB, BatchSize: 8}, nil)
	env := conv.environ()
	assert.Contains(t, env, "DOCSWEEP_MEMORY_CEILING_MB=3072")
	assert.Contains(t, env, "DOCSWEEP_BATCH_SIZE=8")

	conv = newTestConverter(batch.EngineConfig{}, nil)
	for _, kv := range conv.environ() {
		assert.NotContains(t, kv, "DOCSWEEP_MEMORY_CEILING_MB=")
	}
}

func TestTemplate_CustomArgs(t *testing.T) {
	conv := newTestConverter(batch.EngineConfig{Args: []string{"convert", "{input}"}, OCR: true}, nil)
	assert.Equal(t, []string{"convert", "{input}"}, conv.template(), "custom args are used verbatim")

	conv = newTestConverter(batch.EngineConfig{}, nil)
	tmpl := conv.template()
	assert.Equal(t, DefaultArgs, tmpl[:len(DefaultArgs)])
	assert.Contains(t, tmpl, "--no-ocr")
	assert.Len(t, DefaultArgs, 11, "default template is not mutated")
}

func TestEstimatePages(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, 5, EstimatePages(writePDF(t, dir, "five.pdf", 5)))
	assert.Equal(t, 0, EstimatePages(writePDF(t, dir, "none.pdf", 0)), "/Type /Pages is not a page")
	assert.Equal(t, 0, EstimatePages(filepath.Join(dir, "missing.pdf")))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("/Type /Page"), 0o644))
	assert.Equal(t, 0, EstimatePages(txt))
}

func TestEstimatePages_GeneratedPDF(t *testing.T) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := range 3 {
		pdf.AddPage()
		pdf.Cell(40, 10, "Page "+string(rune('1'+i)))
	}
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))

	assert.Equal(t, 3, EstimatePages(path))
}

func TestParsePages(t *testing.T) {
	tests := []struct {
		name string
		out  []string
		want int
	}{
		{"none", []string{"done"}, 0},
		{"plural", []string{"Converted 12 pages in 3.2s"}, 12},
		{"singular", []string{"1 page"}, 1},
		{"last wins", []string{"chunk: 5 pages", "total 20 Pages"}, 20},
		{"not a count", []string{"pagesize 300"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var outs [][]byte
			for _, o := range tt.out {
				outs = append(outs, []byte(o))
			}
			assert.Equal(t, tt.want, ParsePages(outs...))
		})
	}
}

func TestCommandConverter_RealProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a process")
	}
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-engine")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
out="$5"
name=$(basename "$1" .pdf)
echo "# $name" > "$out/$name.md"
echo "Processed 2 pages"
`), 0o755))

	conv, err := New(batch.EngineConfig{Command: script})
	require.NoError(t, err)
	assert.Equal(t, script, conv.Path())

	src := writePDF(t, dir, "memo.pdf", 2)
	out := batch.OutputDirFor(filepath.Join(dir, "out"), src)
	res, err := conv.Convert(context.Background(), src, out, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "memo.md"), res.OutputPath)
	assert.Equal(t, 2, res.PagesConverted)

	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "# memo\n", string(data))
}
