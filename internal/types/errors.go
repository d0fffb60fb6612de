package types

import (
	"fmt"
)

// UnsupportedFormatError is returned when no decoder matches an input file.
type UnsupportedFormatError struct {
	Path   string
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported format: %s", e.Path)
	}
	return fmt.Sprintf("unsupported format: %s: %s", e.Path, e.Reason)
}

// MalformedInputError is returned when a file is structurally unreadable.
// Line is the 1-based line (or record) number where decoding stopped, or 0
// when the problem is not tied to a single line.
type MalformedInputError struct {
	Source string
	Line   int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input %s: line %d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed input %s: %s", e.Source, e.Reason)
}

// Malformed builds a MalformedInputError with a formatted reason.
func Malformed(source string, line int, format string, args ...any) *MalformedInputError {
	return &MalformedInputError{Source: source, Line: line, Reason: fmt.Sprintf(format, args...)}
}

// AmbiguousVariableError records two source columns resolving to the same
// canonical field with different values for one record.  It is recoverable:
// Winner holds the column whose value was kept.
type AmbiguousVariableError struct {
	Source  string
	Record  int
	Field   string
	Winner  string
	Loser   string
	Primary bool
}

func (e *AmbiguousVariableError) Error() string {
	rule := "first seen"
	if e.Primary {
		rule = "primary variable"
	}
	return fmt.Sprintf("ambiguous variable %s in %s record %d: %q and %q disagree, kept %q (%s)",
		e.Field, e.Source, e.Record, e.Winner, e.Loser, e.Winner, rule)
}

// Stage names used in FileError.
const (
	StageDetect    = "detect"
	StageDecode    = "decode"
	StageNormalize = "normalize"
	StageValidate  = "validate"
	StageClassify  = "classify"
)

// FileError is the structured failure surfaced to callers when one file could
// not be processed.
type FileError struct {
	Path  string
	Stage string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Path, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
