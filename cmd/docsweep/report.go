package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jamesainslie/docsweep/pkg/docsweep/output"
)

func formatList() string {
	return strings.Join(output.Available(), ", ")
}

// outputFormat returns the requested report format, defaulting to pretty.
func outputFormat() string {
	if f := viper.GetString("output"); f != "" {
		return f
	}
	return "pretty"
}

// selectFormatter resolves a format name. The template format uses --template
// when given and the built-in layout otherwise.
func selectFormatter(name, tmpl string) (output.Formatter, error) {
	if name == "template" && tmpl != "" {
		return output.NewTemplateFormatter(tmpl), nil
	}
	formatter, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return formatter, nil
}

// printReport renders a report to stdout in the requested format.
func printReport(r *output.Report) error {
	formatter, err := selectFormatter(outputFormat(), viper.GetString("template"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}
