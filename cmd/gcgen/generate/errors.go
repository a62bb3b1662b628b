package generate

import (
	"fmt"
	"go/token"
)

// GenerateError is a generator error tied to a source position.
//
// Example output:
//
//	node.go:12:2: field Callback: cannot trace func values
//
//	Suggestion: Tag the field with `gc:"-"` if it never holds a handle
//
//nolint:revive // GenerateError reads better than Error at call sites
type GenerateError struct {
	File       string // Source file path
	Line       int    // Line number (1-indexed)
	Column     int    // Column number (1-indexed)
	Message    string // Error message
	Suggestion string // Optional suggestion for fixing (empty if none)
}

// Error implements the error interface.
//
// Format: file:line:column: message, followed by the suggestion on its own
// paragraph when present.
func (e *GenerateError) Error() string {
	result := fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// newError creates an error positioned at pos.
func newError(fset *token.FileSet, pos token.Pos, suggestion, format string, args ...any) *GenerateError {
	position := fset.Position(pos)
	return &GenerateError{
		File:       position.Filename,
		Line:       position.Line,
		Column:     position.Column,
		Message:    fmt.Sprintf(format, args...),
		Suggestion: suggestion,
	}
}
