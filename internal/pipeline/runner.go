package pipeline

import (
	"context"

	"arxiv2mathml/internal/failures"
	"arxiv2mathml/internal/loader"
	"arxiv2mathml/internal/logger"
)

// Summary counts the outcomes of a Runner pass
type Summary struct {
	Compiled int
	NoOutput int
	Failed   int
	Skipped  int
}

// Runner compiles a directory of paper files one after another
type Runner struct {
	pipeline  *Pipeline
	ledger    *failures.Ledger
	outputDir string
}

// NewRunner creates a Runner writing compiled papers to outputDir. ledger may be nil.
func NewRunner(p *Pipeline, ledger *failures.Ledger, outputDir string) *Runner {
	return &Runner{
		pipeline:  p,
		ledger:    ledger,
		outputDir: outputDir,
	}
}

// RunDir compiles every *.json paper in inputDir. Papers whose ledger entry cannot
// be retried are skipped. It stops early only when ctx is done.
func (r *Runner) RunDir(ctx context.Context, inputDir string) (*Summary, error) {
	paths, err := loader.ListPapers(inputDir)
	if err != nil {
		return nil, err
	}
	logger.Info("compiling paper directory",
		logger.String("inputDir", inputDir),
		logger.String("outputDir", r.outputDir),
		logger.Int("papers", len(paths)))

	summary := &Summary{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		id := loader.PaperID(path)
		if r.ledger != nil {
			if record, ok := r.ledger.Get(id); ok {
				if !record.CanRetry {
					logger.Debug("skipping failed paper", logger.String("arxivID", id), logger.String("stage", string(record.Stage)))
					summary.Skipped++
					continue
				}
				r.ledger.IncrementRetry(id)
			}
		}

		paper, err := loader.ReadPaper(path)
		if err != nil {
			logger.Error("failed to load paper", err, logger.String("path", path))
			r.record(id, failures.StageLoad, err)
			summary.Failed++
			continue
		}

		result := r.pipeline.CompilePaper(ctx, paper)
		switch result.Status {
		case StatusCompiled, StatusNoOutput:
			if _, err := loader.WriteCompiled(r.outputDir, id, result.Document); err != nil {
				logger.Error("failed to write compiled paper", err, logger.String("arxivID", id))
				summary.Failed++
				continue
			}
			if result.Status == StatusNoOutput {
				r.record(id, failures.StageNoOutput, nil)
				summary.NoOutput++
				continue
			}
			r.forget(id)
			summary.Compiled++
		case StatusTimeout:
			r.record(id, failures.StageTimeout, result.Err)
			summary.Failed++
		case StatusParseFailure:
			r.record(id, failures.StageParse, result.Err)
			summary.Failed++
		default:
			r.record(id, failures.StageProcess, result.Err)
			summary.Failed++
		}
	}

	logger.Info("paper directory done",
		logger.Int("compiled", summary.Compiled),
		logger.Int("noOutput", summary.NoOutput),
		logger.Int("failed", summary.Failed),
		logger.Int("skipped", summary.Skipped))
	return summary, nil
}

func (r *Runner) record(id string, stage failures.Stage, cause error) {
	if r.ledger == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.ledger.Record(id, stage, msg); err != nil {
		logger.Warn("failed to update failure ledger", logger.String("arxivID", id), logger.Err(err))
	}
}

func (r *Runner) forget(id string) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.Remove(id); err != nil {
		logger.Warn("failed to update failure ledger", logger.String("arxivID", id), logger.Err(err))
	}
}
