// Package report prints build, lint and watch results as a table for
// terminals or as JSON or YAML for tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Reporter writes results in one format.
type Reporter struct {
	Format Format
	Writer io.Writer
	// Fancy enables symbols meant for interactive terminals.
	Fancy bool
}

// NewReporter creates a reporter writing to w. Symbols are enabled when w
// is a terminal.
func NewReporter(format Format, w io.Writer) *Reporter {
	return &Reporter{Format: format, Writer: w, Fancy: IsTerminal(w)}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Structured reports whether output is meant for machines.
func (r *Reporter) Structured() bool {
	return r.Format == FormatJSON || r.Format == FormatYAML
}

// Print outputs data in the configured structured format. Table format
// falls back to JSON.
func (r *Reporter) Print(data any) error {
	if r.Format == FormatYAML {
		encoder := yaml.NewEncoder(r.Writer)
		encoder.SetIndent(2)
		defer func() { _ = encoder.Close() }()
		return encoder.Encode(data)
	}
	encoder := json.NewEncoder(r.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Line prints a message in table mode only.
func (r *Reporter) Line(format string, args ...any) {
	if r.Structured() {
		return
	}
	_, _ = fmt.Fprintf(r.Writer, format+"\n", args...)
}

func (r *Reporter) table(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(r.Writer)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

func (r *Reporter) status(ok bool, cancelled bool) string {
	switch {
	case cancelled && r.Fancy:
		return "⊘ cancelled"
	case cancelled:
		return "cancelled"
	case ok && r.Fancy:
		return "✓"
	case ok:
		return "ok"
	case r.Fancy:
		return "✗ failed"
	default:
		return "failed"
	}
}
