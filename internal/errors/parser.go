// Package errors provides the error taxonomy for tspack and parsing of
// external tool output into structured, located errors.
//
// Configuration errors (missing manifest, no entry points) are fatal and are
// raised before any job runs. Per-job build errors are collected with their
// source location and the plugin or tool that produced them, and the
// pass/fail decision is taken once all jobs settle. Missing optional tools
// degrade to warnings.
package errors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ToolErrorType represents the tool that produced an error line
type ToolErrorType int

const (
	ToolErrorTypeUnknown ToolErrorType = iota
	ToolErrorTypeTypeScript
	ToolErrorTypeTypeScriptConfig
	ToolErrorTypeNode
)

// ParsedError represents a parsed error with structured information
type ParsedError struct {
	Type     ToolErrorType `json:"type"`
	Severity ErrorSeverity `json:"severity"`
	Code     string        `json:"code,omitempty"`
	File     string        `json:"file"`
	Line     int           `json:"line"`
	Column   int           `json:"column"`
	Message  string        `json:"message"`
	RawError string        `json:"raw_error"`
}

// ErrorParser parses tsc and node output into structured errors
type ErrorParser struct {
	patterns []errorPattern
}

type errorPattern struct {
	regex       *regexp.Regexp
	errorType   ToolErrorType
	parseFields func(matches []string) (pe ParsedError)
}

// NewErrorParser creates a new error parser
func NewErrorParser() *ErrorParser {
	return &ErrorParser{patterns: buildTscPatterns()}
}

// ParseError parses tool output into structured errors. Lines matching no
// known pattern are kept only if they look like an error.
func (ep *ErrorParser) ParseError(output string) []*ParsedError {
	var parsed []*ParsedError

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if pe := ep.tryParse(line); pe != nil {
			parsed = append(parsed, pe)
			continue
		}

		// Continuation lines of a multi-line tsc diagnostic are indented.
		if len(parsed) > 0 && strings.HasPrefix(line, "  ") {
			last := parsed[len(parsed)-1]
			last.Message += "\n" + strings.TrimSpace(line)
			continue
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			parsed = append(parsed, &ParsedError{
				Type:     ToolErrorTypeUnknown,
				Severity: ErrorSeverityError,
				Message:  strings.TrimSpace(line),
				RawError: line,
			})
		}
	}

	return parsed
}

func (ep *ErrorParser) tryParse(line string) *ParsedError {
	for _, pattern := range ep.patterns {
		matches := pattern.regex.FindStringSubmatch(line)
		if matches == nil {
			continue
		}
		pe := pattern.parseFields(matches)
		pe.Type = pattern.errorType
		pe.RawError = line
		return &pe
	}
	return nil
}

func severityOf(word string) ErrorSeverity {
	switch word {
	case "warning":
		return ErrorSeverityWarning
	case "message":
		return ErrorSeverityInfo
	default:
		return ErrorSeverityError
	}
}

func buildTscPatterns() []errorPattern {
	return []errorPattern{
		{
			// src/index.ts(3,7): error TS2322: Type 'string' is not assignable...
			regex:     regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning|message) (TS\d+): (.+)$`),
			errorType: ToolErrorTypeTypeScript,
			parseFields: func(m []string) ParsedError {
				line, _ := strconv.Atoi(m[2])
				column, _ := strconv.Atoi(m[3])
				return ParsedError{
					File: m[1], Line: line, Column: column,
					Severity: severityOf(m[4]), Code: m[5], Message: m[6],
				}
			},
		},
		{
			// src/index.ts:3:7 - error TS2322: ... (--pretty output)
			regex:     regexp.MustCompile(`^(.+?):(\d+):(\d+) - (error|warning|message) (TS\d+): (.+)$`),
			errorType: ToolErrorTypeTypeScript,
			parseFields: func(m []string) ParsedError {
				line, _ := strconv.Atoi(m[2])
				column, _ := strconv.Atoi(m[3])
				return ParsedError{
					File: m[1], Line: line, Column: column,
					Severity: severityOf(m[4]), Code: m[5], Message: m[6],
				}
			},
		},
		{
			// error TS5058: The specified path does not exist: 'tsconfig.json'.
			regex:     regexp.MustCompile(`^(error|warning) (TS\d+): (.+)$`),
			errorType: ToolErrorTypeTypeScriptConfig,
			parseFields: func(m []string) ParsedError {
				return ParsedError{Severity: severityOf(m[1]), Code: m[2], Message: m[3]}
			},
		},
		{
			regex:     regexp.MustCompile(`^Error: Cannot find module '(.+)'`),
			errorType: ToolErrorTypeNode,
			parseFields: func(m []string) ParsedError {
				return ParsedError{Severity: ErrorSeverityError, Message: fmt.Sprintf("cannot find module %s", m[1])}
			},
		},
	}
}

// FormatError formats a parsed error for display
func (pe *ParsedError) FormatError() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("[%s]", pe.Severity))
	if pe.Code != "" {
		builder.WriteString(" " + pe.Code)
	}

	if pe.File != "" {
		builder.WriteString(fmt.Sprintf(" in %s", pe.File))
		if pe.Line > 0 {
			builder.WriteString(fmt.Sprintf(":%d", pe.Line))
			if pe.Column > 0 {
				builder.WriteString(fmt.Sprintf(":%d", pe.Column))
			}
		}
	}

	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("  %s\n", pe.Message))

	return builder.String()
}

// CountBySeverity returns how many parsed errors are errors and warnings.
func CountBySeverity(parsed []*ParsedError) (errs, warnings int) {
	for _, pe := range parsed {
		switch {
		case pe.Severity >= ErrorSeverityError:
			errs++
		case pe.Severity == ErrorSeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}
