// Package types defines the paper data model, the compiler wire format and the
// error codes shared by the compilation pipeline.
package types

import (
	"encoding/json"
	"errors"
	"strings"
)

// Lines is an ordered list of preamble lines. Later lines may override earlier ones.
//
// On decode it accepts either a JSON array of strings or one newline-separated
// string, since upstream extraction emits both.
type Lines []string

// UnmarshalJSON implements json.Unmarshaler
func (l *Lines) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return errors.New("preamble must be a string or an array of strings")
	}
	lines := make([]string, 0)
	for _, line := range strings.Split(joined, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	*l = lines
	return nil
}

// Paper is a paper as supplied by upstream extraction
type Paper struct {
	ArxivID  string    `json:"arxiv_id,omitempty"`
	Preamble Lines     `json:"preamble"`
	Sections []Section `json:"sections"`
}

// Section groups equations. Equation order is significant.
type Section struct {
	Equations []Equation `json:"equations"`
}

// Equation is a single LaTeX formula. No is an identifier, not a position; it may
// repeat or skip values.
type Equation struct {
	Latex string `json:"latex"`
	No    int    `json:"no"`
}

// CompilationRequest is the JSON object written to the compiler's stdin.
type CompilationRequest struct {
	ArxivID  string    `json:"arxiv_id,omitempty"`
	Preamble string    `json:"preamble"`
	Sections []Section `json:"sections"`
}

// CompiledPaper is a paper after compilation
type CompiledPaper struct {
	ArxivID  string            `json:"arxiv_id,omitempty"`
	Preamble []string          `json:"preamble"`
	Sections []CompiledSection `json:"sections"`
}

// CompiledSection holds the compiled equations of one section, in input order
type CompiledSection struct {
	Equations []CompiledEquation `json:"equations"`
}

// CompiledEquation is an equation together with its MathML. A nil MathML means
// compilation of this equation failed.
type CompiledEquation struct {
	Latex  string  `json:"latex"`
	No     int     `json:"no"`
	MathML *string `json:"mathml,omitempty"`
}

// Compiled reports whether the equation carries MathML
func (e CompiledEquation) Compiled() bool {
	return e.MathML != nil
}

// Counts returns the number of equations and the number of those carrying MathML
func (p *CompiledPaper) Counts() (total, compiled int) {
	for _, sec := range p.Sections {
		for _, eq := range sec.Equations {
			total++
			if eq.Compiled() {
				compiled++
			}
		}
	}
	return total, compiled
}

// JoinPreamble flattens preamble lines into the single block the compiler expects
func JoinPreamble(lines []string) string {
	return strings.Join(lines, "\n")
}

// SplitPreamble is the inverse of JoinPreamble. An empty block yields no lines.
func SplitPreamble(block string) []string {
	if block == "" {
		return []string{}
	}
	return strings.Split(block, "\n")
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	// ErrTimeout: the compiler exceeded its wall-clock budget. Recoverable.
	ErrTimeout ErrorCode = "TIMEOUT_ERROR"
	// ErrProcess: the compiler could not be spawned or its I/O failed.
	ErrProcess ErrorCode = "PROCESS_ERROR"
	// ErrParse: the compiler's stdout was not valid JSON.
	ErrParse        ErrorCode = "PARSE_ERROR"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// IsCode reports whether err wraps an AppError with the given code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
