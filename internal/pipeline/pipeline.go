// Package pipeline compiles papers end to end: preamble normalization and equation
// repair, one compiler invocation, and interpretation of its output.
package pipeline

import (
	"context"

	"arxiv2mathml/internal/compiler"
	"arxiv2mathml/internal/logger"
	"arxiv2mathml/internal/preamble"
	"arxiv2mathml/internal/repair"
	"arxiv2mathml/internal/response"
	"arxiv2mathml/internal/types"
)

// anonymousPaper names papers without an arXiv ID in logs
const anonymousPaper = "<string>"

// Status is the outcome of compiling one paper
type Status int

const (
	// StatusCompiled: the compiler returned a document. Individual equations may
	// still lack MathML.
	StatusCompiled Status = iota
	// StatusNoOutput: the compiler wrote nothing to stdout. Soft failure.
	StatusNoOutput
	// StatusTimeout: the compiler ran out of time. The caller may retry.
	StatusTimeout
	// StatusProcessFailure: the compiler could not be run
	StatusProcessFailure
	// StatusParseFailure: the compiler's stdout was not valid JSON
	StatusParseFailure
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusCompiled:
		return "compiled"
	case StatusNoOutput:
		return "no_output"
	case StatusTimeout:
		return "timeout"
	case StatusProcessFailure:
		return "process_failure"
	case StatusParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of CompilePaper
type Result struct {
	Status Status
	// Document is set for StatusCompiled and StatusNoOutput. For StatusNoOutput every
	// equation is present without MathML.
	Document   *types.CompiledPaper
	Diagnostic response.Diagnostic
	// Err carries the cause for the failure statuses
	Err error
	// Attempts counts compiler invocations, including timeout retries
	Attempts int
}

// Pipeline compiles papers with a Compiler
type Pipeline struct {
	normalizer  *preamble.Normalizer
	repairer    *repair.Repairer
	compiler    compiler.Compiler
	interpreter *response.Interpreter
	retries     int
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithExperimental enables the experimental \def preamble rewrite
func WithExperimental(enabled bool) Option {
	return func(p *Pipeline) {
		p.normalizer = preamble.NewNormalizer(preamble.WithExperimental(enabled))
	}
}

// WithRetries resubmits a paper up to n more times after a timeout
func WithRetries(n int) Option {
	return func(p *Pipeline) {
		if n < 0 {
			n = 0
		}
		p.retries = n
	}
}

// New creates a Pipeline around c
func New(c compiler.Compiler, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalizer:  preamble.NewNormalizer(),
		repairer:    repair.NewRepairer(),
		compiler:    c,
		interpreter: response.NewInterpreter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig creates a Pipeline that runs the compiler script described by cfg
func NewFromConfig(cfg *types.Config) *Pipeline {
	if cfg == nil {
		cfg = &types.Config{}
	}
	return New(compiler.NewProcessCompiler(cfg),
		WithExperimental(cfg.Experimental),
		WithRetries(cfg.Retries))
}

// Prepare builds the compilation request for paper. paper is not modified.
func (p *Pipeline) Prepare(paper *types.Paper) *types.CompilationRequest {
	sections := make([]types.Section, len(paper.Sections))
	for i, sec := range paper.Sections {
		equations := make([]types.Equation, len(sec.Equations))
		for j, eq := range sec.Equations {
			equations[j] = types.Equation{
				Latex: p.repairer.Repair(eq.Latex),
				No:    eq.No,
			}
		}
		sections[i] = types.Section{Equations: equations}
	}
	return &types.CompilationRequest{
		ArxivID:  paper.ArxivID,
		Preamble: p.normalizer.Normalize(paper.Preamble),
		Sections: sections,
	}
}

// CompilePaper compiles every equation of paper in one compiler invocation.
// Failures are reported through the Result, never by panicking.
func (p *Pipeline) CompilePaper(ctx context.Context, paper *types.Paper) *Result {
	id := paper.ArxivID
	if id == "" {
		id = anonymousPaper
	}
	req := p.Prepare(paper)
	result := &Result{}

	var resp *compiler.Response
	var err error
	for attempt := 1; ; attempt++ {
		result.Attempts = attempt
		resp, err = p.compiler.Invoke(ctx, req)
		if err == nil || !types.IsCode(err, types.ErrTimeout) || attempt > p.retries || ctx.Err() != nil {
			break
		}
		logger.Warn("compiler timed out, retrying",
			logger.String("arxivID", id),
			logger.Int("attempt", attempt))
	}

	if err != nil {
		result.Err = err
		if types.IsCode(err, types.ErrTimeout) {
			result.Status = StatusTimeout
			logger.Warn("timeout for paper", logger.String("arxivID", id), logger.Int("attempts", result.Attempts))
		} else {
			result.Status = StatusProcessFailure
			logger.Error("error calling tex2mathml.js", err, logger.String("arxivID", id))
		}
		return result
	}

	in, err := p.interpreter.Interpret(id, resp.Stdout, resp.Stderr)
	if err != nil {
		result.Status = StatusParseFailure
		if perr, ok := err.(*response.ParseError); ok {
			result.Err = perr.AsAppError()
		} else {
			result.Err = err
		}
		return result
	}
	result.Diagnostic = in.Diagnostic

	if in.NoOutput {
		result.Status = StatusNoOutput
		result.Document = unCompiled(req)
		logger.Warn("compiler produced no output",
			logger.String("arxivID", id),
			logger.String("diagnostic", in.Diagnostic.Kind.String()))
		return result
	}

	doc := in.Document
	if doc.ArxivID == "" {
		doc.ArxivID = paper.ArxivID
	}
	result.Status = StatusCompiled
	result.Document = doc

	total, compiled := doc.Counts()
	logger.Info("paper compiled",
		logger.String("arxivID", id),
		logger.Int("equations", total),
		logger.Int("compiled", compiled),
		logger.Duration("duration", resp.Duration))
	return result
}

// CompileString compiles a single formula and returns its MathML without the
// source annotation. ok is false when the formula did not compile.
func (p *Pipeline) CompileString(ctx context.Context, latex string) (mathml string, ok bool) {
	paper := &types.Paper{
		Preamble: types.Lines{},
		Sections: []types.Section{{Equations: []types.Equation{{Latex: latex, No: 0}}}},
	}
	result := p.CompilePaper(ctx, paper)
	if result.Document == nil || len(result.Document.Sections) == 0 {
		return "", false
	}
	equations := result.Document.Sections[0].Equations
	if len(equations) == 0 || equations[0].MathML == nil || *equations[0].MathML == "" {
		return "", false
	}
	return response.ExtractPlain(*equations[0].MathML), true
}

// unCompiled mirrors req as a compiled document in which no equation has MathML
func unCompiled(req *types.CompilationRequest) *types.CompiledPaper {
	sections := make([]types.CompiledSection, len(req.Sections))
	for i, sec := range req.Sections {
		equations := make([]types.CompiledEquation, len(sec.Equations))
		for j, eq := range sec.Equations {
			equations[j] = types.CompiledEquation{Latex: eq.Latex, No: eq.No}
		}
		sections[i] = types.CompiledSection{Equations: equations}
	}
	return &types.CompiledPaper{
		ArxivID:  req.ArxivID,
		Preamble: types.SplitPreamble(req.Preamble),
		Sections: sections,
	}
}
