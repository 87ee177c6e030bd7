package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/perfmon"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// reportDoc is the document shape shared by the json and yaml formatters.
type reportDoc struct {
	Results []resultDoc `json:"results" yaml:"results"`
	Skipped []Skipped   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Summary summaryDoc  `json:"summary" yaml:"summary"`
	Meta    metaDoc     `json:"meta" yaml:"meta"`
}

type resultDoc struct {
	TaskID          string    `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	Success         bool      `json:"success" yaml:"success"`
	SourcePath      string    `json:"source_path" yaml:"source_path"`
	OutputPath      string    `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	PagesConverted  int       `json:"pages_converted" yaml:"pages_converted"`
	TotalPages      int       `json:"total_pages" yaml:"total_pages"`
	ImagesExtracted int       `json:"images_extracted" yaml:"images_extracted"`
	Duration        string    `json:"duration" yaml:"duration"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
	Warnings        []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	CompletedAt     time.Time `json:"completed_at" yaml:"completed_at"`
}

type summaryDoc struct {
	Total       int    `json:"total" yaml:"total"`
	Successful  int    `json:"successful" yaml:"successful"`
	Failed      int    `json:"failed" yaml:"failed"`
	Skipped     int    `json:"skipped" yaml:"skipped"`
	TotalPages  int    `json:"total_pages" yaml:"total_pages"`
	TotalImages int    `json:"total_images" yaml:"total_images"`
	Duration    string `json:"total_duration" yaml:"total_duration"`
}

type metaDoc struct {
	RunID       string               `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Source      string               `json:"source,omitempty" yaml:"source,omitempty"`
	OutputDir   string               `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Device      string               `json:"device,omitempty" yaml:"device,omitempty"`
	Plan        tuner.ResourceConfig `json:"plan" yaml:"plan"`
	Elapsed     string               `json:"elapsed,omitempty" yaml:"elapsed,omitempty"`
	Interrupted bool                 `json:"interrupted" yaml:"interrupted"`
	Warnings    []string             `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Performance *perfmon.Statistics  `json:"performance,omitempty" yaml:"performance,omitempty"`
}

func buildDoc(r *Report) reportDoc {
	results := make([]resultDoc, len(r.Results))
	for i, res := range r.Results {
		results[i] = resultDoc{
			TaskID:          res.TaskID,
			Success:         res.Success,
			SourcePath:      res.SourcePath,
			OutputPath:      res.OutputPath,
			PagesConverted:  res.PagesConverted,
			TotalPages:      res.TotalPages,
			ImagesExtracted: res.ImagesExtracted,
			Duration:        formatDurationString(res.Duration),
			Error:           res.Error,
			Warnings:        res.Warnings,
			CompletedAt:     res.CompletedAt,
		}
	}
	return reportDoc{
		Results: results,
		Skipped: r.Skipped,
		Summary: buildSummary(r.Summary, len(r.Skipped)),
		Meta: metaDoc{
			RunID:       r.RunID,
			Source:      r.Source,
			OutputDir:   r.OutputDir,
			Device:      r.Device,
			Plan:        r.Plan,
			Elapsed:     formatDurationString(r.Elapsed),
			Interrupted: r.Interrupted,
			Warnings:    r.Warnings,
			Performance: r.Performance,
		},
	}
}

func buildSummary(s types.Summary, skipped int) summaryDoc {
	return summaryDoc{
		Total:       s.Total,
		Successful:  s.Successful,
		Failed:      s.Failed,
		Skipped:     skipped,
		TotalPages:  s.TotalPages,
		TotalImages: s.TotalImages,
		Duration:    formatDurationString(s.Duration),
	}
}

// JSONFormatter renders the report as one indented JSON document.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDoc(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
