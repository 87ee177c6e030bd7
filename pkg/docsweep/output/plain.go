package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter renders an aligned table without colors, followed by a
// one-line summary. Suitable for logs and pipes.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := fmt.Fprintln(tw, "STATUS\tPAGES\tIMAGES\tTIME\tSOURCE\tERROR"); err != nil {
		return err
	}
	for _, res := range r.Results {
		_, err := fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			status(res), res.PagesConverted, res.ImagesExtracted,
			formatDuration(res.Duration), res.SourcePath, res.Error)
		if err != nil {
			return err
		}
	}
	for _, s := range r.Skipped {
		if _, err := fmt.Fprintf(tw, "skipped\t-\t-\t-\t%s\t%s\n", s.SourcePath, s.Reason); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sum := r.Summary
	fmt.Fprintf(w, "\n%d converted, %d failed, %d skipped, %d pages, %d images",
		sum.Successful, sum.Failed, len(r.Skipped), sum.TotalPages, sum.TotalImages)
	if r.Elapsed > 0 {
		fmt.Fprintf(w, " in %s", formatDuration(r.Elapsed))
	}
	w.WriteString("\n")
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
