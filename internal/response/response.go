// Package response interprets the output of the TeX-to-MathML compiler.
package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"arxiv2mathml/internal/logger"
	"arxiv2mathml/internal/types"
)

// ParseErrorMarker identifies an equation-level KaTeX syntax error on stderr
const ParseErrorMarker = "Error in LaTeX:KaTeX parse error"

// DiagnosticKind classifies the compiler's stderr
type DiagnosticKind int

const (
	// DiagnosticNone: stderr was empty
	DiagnosticNone DiagnosticKind = iota
	// DiagnosticCompilation: malformed LaTeX in some equation. Expected.
	DiagnosticCompilation
	// DiagnosticUnexpected: any other stderr output
	DiagnosticUnexpected
)

// String returns the string representation of the kind
func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticNone:
		return "none"
	case DiagnosticCompilation:
		return "compilation"
	case DiagnosticUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Diagnostic is the classified stderr of one invocation
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
}

// Classify sorts stderr into a DiagnosticKind by substring match
func Classify(stderr []byte) Diagnostic {
	if len(stderr) == 0 {
		return Diagnostic{Kind: DiagnosticNone}
	}
	msg := string(stderr)
	if strings.Contains(msg, ParseErrorMarker) {
		return Diagnostic{Kind: DiagnosticCompilation, Message: msg}
	}
	return Diagnostic{Kind: DiagnosticUnexpected, Message: msg}
}

// ParseError reports stdout that is not a valid compiled document
type ParseError struct {
	// Raw is the offending stdout, trimmed
	Raw string
	// Offset is the byte offset of the decode error within Raw, or -1
	Offset int64
	Cause  error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("invalid compiler output at offset %d: %v", e.Offset, e.Cause)
	}
	return fmt.Sprintf("invalid compiler output: %v", e.Cause)
}

// Unwrap returns the decode error
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// AsAppError wraps the parse error as a types.ErrParse application error
func (e *ParseError) AsAppError() *types.AppError {
	return types.NewAppError(types.ErrParse, "failed to decode compiler output", e)
}

// Interpretation is the outcome of a successful interpretation
type Interpretation struct {
	// Document is nil when NoOutput is set
	Document   *types.CompiledPaper
	Diagnostic Diagnostic
	// NoOutput: stdout was empty or whitespace
	NoOutput bool
}

// wireDocument is the response object as the compiler writes it
type wireDocument struct {
	ArxivID  string                  `json:"arxiv_id,omitempty"`
	Preamble string                  `json:"preamble"`
	Sections []types.CompiledSection `json:"sections"`
}

// Interpreter turns raw compiler output into a compiled document
type Interpreter struct{}

// NewInterpreter creates an Interpreter
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Interpret classifies stderr and decodes stdout. paperID is used for logging only.
// The only error it returns is a *ParseError.
func (i *Interpreter) Interpret(paperID string, stdout, stderr []byte) (*Interpretation, error) {
	diag := Classify(stderr)
	switch diag.Kind {
	case DiagnosticCompilation:
		logger.Debug("compilation failed for some equations",
			logger.String("arxivID", paperID),
			logger.String("stderr", diag.Message))
	case DiagnosticUnexpected:
		logger.Warn("unexpected error in tex2mathml.js",
			logger.String("arxivID", paperID),
			logger.String("stderr", diag.Message))
	}

	raw := bytes.TrimSpace(stdout)
	if len(raw) == 0 {
		return &Interpretation{Diagnostic: diag, NoOutput: true}, nil
	}

	var wire wireDocument
	if err := json.Unmarshal(raw, &wire); err != nil {
		perr := &ParseError{Raw: string(raw), Offset: -1, Cause: err}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			perr.Offset = syntaxErr.Offset
		case errors.As(err, &typeErr):
			perr.Offset = typeErr.Offset
		}
		logger.Error("JSON decoding failed", err,
			logger.String("arxivID", paperID),
			logger.String("stdout", perr.Raw))
		return nil, perr
	}

	doc := &types.CompiledPaper{
		ArxivID:  wire.ArxivID,
		Preamble: types.SplitPreamble(wire.Preamble),
		Sections: wire.Sections,
	}
	if doc.Sections == nil {
		doc.Sections = []types.CompiledSection{}
	}
	return &Interpretation{Document: doc, Diagnostic: diag}, nil
}

// annotation spans from the first <annotation to the last </annotation>, across lines
var annotation = regexp.MustCompile(`(?s)<annotation.*</annotation>`)

// ExtractPlain removes the embedded source annotation from MathML
func ExtractPlain(mathml string) string {
	return annotation.ReplaceAllLiteralString(mathml, "")
}
