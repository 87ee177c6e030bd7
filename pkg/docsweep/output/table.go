package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

var tableHeader = []string{"STATUS", "PAGES", "TOTAL_PAGES", "IMAGES", "DURATION", "SOURCE", "OUTPUT", "ERROR"}

func tableRows(r *Report) [][]string {
	rows := make([][]string, 0, len(r.Results)+len(r.Skipped))
	for _, res := range r.Results {
		rows = append(rows, []string{
			status(res),
			strconv.Itoa(res.PagesConverted),
			strconv.Itoa(res.TotalPages),
			strconv.Itoa(res.ImagesExtracted),
			strconv.FormatFloat(res.Duration.Seconds(), 'f', 3, 64),
			res.SourcePath,
			res.OutputPath,
			res.Error,
		})
	}
	for _, s := range r.Skipped {
		rows = append(rows, []string{"skipped", "0", "0", "0", "0.000", s.SourcePath, "", s.Reason})
	}
	return rows
}

// TSVFormatter renders one tab-separated row per document. Tabs and
// newlines inside fields are replaced by spaces.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	clean := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")
	w.WriteString(strings.Join(tableHeader, "\t"))
	w.WriteByte('\n')
	for _, row := range tableRows(r) {
		for i, field := range row {
			row[i] = clean.Replace(field)
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return nil
}

func init() {
	Register("tsv", func() Formatter {
		return &TSVFormatter{}
	})
}

var _ Formatter = (*TSVFormatter)(nil)

// CSVFormatter renders RFC 4180 comma-separated rows.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tableHeader); err != nil {
		return err
	}
	if err := writer.WriteAll(tableRows(r)); err != nil {
		return err
	}
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

var _ Formatter = (*CSVFormatter)(nil)
