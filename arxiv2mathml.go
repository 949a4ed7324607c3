// Package arxiv2mathml compiles the equations of arXiv papers from LaTeX to MathML
// by way of a KaTeX-based Node.js script.
package arxiv2mathml

import (
	"context"

	"arxiv2mathml/internal/config"
	"arxiv2mathml/internal/failures"
	"arxiv2mathml/internal/logger"
	"arxiv2mathml/internal/pipeline"
	"arxiv2mathml/internal/response"
	"arxiv2mathml/internal/types"
)

type (
	Paper         = types.Paper
	Section       = types.Section
	Equation      = types.Equation
	CompiledPaper = types.CompiledPaper
	Config        = types.Config
	Result        = pipeline.Result
	Status        = pipeline.Status
	Summary       = pipeline.Summary
)

const (
	StatusCompiled       = pipeline.StatusCompiled
	StatusNoOutput       = pipeline.StatusNoOutput
	StatusTimeout        = pipeline.StatusTimeout
	StatusProcessFailure = pipeline.StatusProcessFailure
	StatusParseFailure   = pipeline.StatusParseFailure
)

// Converter compiles papers and single formulas
type Converter struct {
	pipeline *pipeline.Pipeline
	cfg      *types.Config
}

// New creates a Converter that runs the compiler script described by cfg.
// A nil cfg uses the defaults.
func New(cfg *Config) *Converter {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Converter{pipeline: pipeline.NewFromConfig(cfg), cfg: cfg}
}

// Open loads configPath (and the environment overrides), initializes the global
// logger from it and returns a Converter. An empty configPath uses the default
// location in the user's config directory.
func Open(configPath string) (*Converter, error) {
	m, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	if err := m.Load(); err != nil {
		return nil, err
	}
	if err := logger.Init(m.LoggerConfig()); err != nil {
		return nil, err
	}
	return New(m.GetConfig()), nil
}

// Config returns the settings the Converter was built with
func (c *Converter) Config() *Config {
	return c.cfg
}

// CompilePaper compiles every equation of paper in one compiler invocation
func (c *Converter) CompilePaper(ctx context.Context, paper *Paper) *Result {
	return c.pipeline.CompilePaper(ctx, paper)
}

// CompileString compiles a single formula. ok is false when it did not compile.
func (c *Converter) CompileString(ctx context.Context, latex string) (mathml string, ok bool) {
	return c.pipeline.CompileString(ctx, latex)
}

// CompileDir compiles every paper file in inputDir into outputDir. Failures are
// kept in a ledger under ledgerDir so later runs skip papers that cannot succeed.
// An empty ledgerDir disables the ledger.
func (c *Converter) CompileDir(ctx context.Context, inputDir, outputDir, ledgerDir string) (*Summary, error) {
	var ledger *failures.Ledger
	if ledgerDir != "" {
		var err error
		if ledger, err = failures.NewLedger(ledgerDir); err != nil {
			return nil, err
		}
	}
	return pipeline.NewRunner(c.pipeline, ledger, outputDir).RunDir(ctx, inputDir)
}

// ExtractPlain removes the LaTeX source annotation from mathml
func ExtractPlain(mathml string) string {
	return response.ExtractPlain(mathml)
}
