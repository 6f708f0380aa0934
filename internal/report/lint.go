package report

import (
	"fmt"
	"path/filepath"

	"github.com/conneroisu/tspack/internal/toolchain"
)

// PrintLint writes eslint diagnostics with paths relative to root.
func (r *Reporter) PrintLint(root string, res *toolchain.LintResult) error {
	if r.Structured() {
		return r.Print(res)
	}

	var rows [][]string
	for _, f := range res.Files {
		path := f.FilePath
		if rel, err := filepath.Rel(root, path); err == nil {
			path = filepath.ToSlash(rel)
		}
		for _, m := range f.Messages {
			severity := "warning"
			if m.Severity >= 2 {
				severity = "error"
			}
			rows = append(rows, []string{fmt.Sprintf("%s:%d:%d", path, m.Line, m.Column), severity, m.RuleID, m.Message})
		}
	}
	if len(rows) > 0 {
		r.table([]string{"Location", "Severity", "Rule", "Message"}, rows)
	}
	r.Line("%s, %s", plural(res.Errors, "error"), plural(res.Warnings, "warning"))
	return nil
}
