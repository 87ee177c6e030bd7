package output

import (
	"bytes"
	"path/filepath"
	"sync"
	"text/template"
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// TemplateFormatter renders the report with a text/template. The template
// receives the *Report.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// NewTemplateFormatter creates a formatter for templateStr.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{templateStr: templateStr}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// {{bytes .Performance.DiskReadBytes}}
		"bytes": types.FormatSize,
		// {{duration .Duration}}
		"duration": func(d time.Duration) string { return formatDuration(d) },
		// {{base .SourcePath}}
		"base": filepath.Base,
		// {{date .CompletedAt "2006-01-02"}}
		"date": func(t time.Time, layout string) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		},
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}
	return f.template.Execute(w, r)
}

const defaultTemplate = `{{range .Results}}{{if .Success}}ok{{else}}failed{{end}}	{{.PagesConverted}}	{{.SourcePath}}
{{end}}`

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(defaultTemplate)
	})
}

var _ Formatter = (*TemplateFormatter)(nil)
