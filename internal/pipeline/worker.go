package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/groundtruth/internal/document"
	"github.com/dgallion1/groundtruth/internal/extract"
	"github.com/dgallion1/groundtruth/internal/figcache"
	"github.com/dgallion1/groundtruth/internal/grounding"
	"github.com/dgallion1/groundtruth/internal/metrics"
	"github.com/dgallion1/groundtruth/internal/workflow"
)

// RunInput is one document run through one workflow.
type RunInput struct {
	// DocID keys the figure cache. Empty means the hash of the text.
	DocID    string
	Document *document.Structure
	Workflow workflow.Workflow
}

// RunResult is everything a run produces.
type RunResult struct {
	DocID              string                   `json:"doc_id"`
	Workflow           string                   `json:"workflow"`
	Parsed             map[string]any           `json:"parsed"`
	Raw                string                   `json:"raw"`
	FigureDescriptions []document.MatchedFigure `json:"figure_descriptions"`
	Grounding          *grounding.Report        `json:"grounding"`
	SchemaIssues       []string                 `json:"schema_issues,omitempty"`
	Chunks             int                      `json:"chunks"`
}

// Describer produces figure descriptions for embedded images.
type Describer interface {
	Describe(ctx context.Context, images []document.Image) ([]document.FigureDescription, bool)
}

// Extractor runs a workflow over document text.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input) (*extract.Result, error)
}

// Corrector validates and self-corrects an extraction.
type Corrector interface {
	Run(ctx context.Context, result map[string]any, source string) (map[string]any, *grounding.Report)
}

// Runner executes workflow runs: figure descriptions (cached per
// document), extraction, then grounding with self-correction.
type Runner struct {
	describer Describer
	cache     figcache.Store
	extractor Extractor
	corrector Corrector
	log       *slog.Logger
}

func NewRunner(d Describer, cache figcache.Store, e Extractor, c Corrector, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{describer: d, cache: cache, extractor: e, corrector: c, log: log}
}

// Run executes in synchronously.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	return r.run(ctx, in, func(JobStatus, string) {})
}

// Process runs a queued job, recording phases and the outcome on it.
func (r *Runner) Process(ctx context.Context, job *Job) {
	res, err := r.run(ctx, job.Input(), job.SetStatus)
	if err != nil {
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "failed")
		return
	}
	job.Complete(res)
}

func (r *Runner) run(ctx context.Context, in RunInput, track func(JobStatus, string)) (*RunResult, error) {
	if in.Document == nil {
		metrics.Runs.WithLabelValues(string(StatusFailed)).Inc()
		return nil, fmt.Errorf("run: %w", extract.ErrNoText)
	}
	source := in.Document.FullText()
	docID := in.DocID
	if docID == "" {
		docID = ContentHashHex([]byte(source))
	}
	log := r.log.With("doc_id", docID, "workflow", in.Workflow.Name)

	track(StatusDescribing, "describing figures")
	descs := r.figureDescriptions(ctx, docID, in.Document.Images, log)

	track(StatusExtracting, "extracting")
	ext, err := r.extractor.Extract(ctx, extract.Input{
		Workflow: in.Workflow,
		Text:     source,
		Sections: in.Document.Sections,
		Figures:  descs,
	})
	if err != nil {
		log.Error("extraction failed", "error", err)
		metrics.Runs.WithLabelValues(string(StatusFailed)).Inc()
		return nil, fmt.Errorf("extract: %w", err)
	}

	res := &RunResult{
		DocID:              docID,
		Workflow:           in.Workflow.Name,
		Parsed:             ext.Parsed,
		Raw:                ext.Raw,
		FigureDescriptions: ext.Figures,
		SchemaIssues:       ext.SchemaIssues,
		Chunks:             ext.Chunks,
	}
	if res.FigureDescriptions == nil {
		res.FigureDescriptions = []document.MatchedFigure{}
	}

	if ext.Parsed != nil && r.corrector != nil {
		track(StatusValidating, "validating")
		res.Parsed, res.Grounding = r.corrector.Run(ctx, ext.Parsed, source)
		metrics.GroundingScore.Observe(res.Grounding.OverallScore)
		for _, c := range res.Grounding.CorrectionsApplied {
			metrics.Corrections.WithLabelValues(c.Action).Inc()
		}
	} else {
		log.Warn("no structured output to validate")
	}

	metrics.Runs.WithLabelValues(string(StatusCompleted)).Inc()
	log.Info("run complete", "chunks", res.Chunks, "figures", len(res.FigureDescriptions), "grounded", res.Grounding != nil)
	return res, nil
}

// figureDescriptions reads the cache, falling back to the describer. Only
// a complete set of descriptions is written back. Cache errors count as
// misses.
func (r *Runner) figureDescriptions(ctx context.Context, docID string, images []document.Image, log *slog.Logger) []document.FigureDescription {
	if len(images) == 0 || r.describer == nil {
		return nil
	}

	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, docID)
		switch {
		case err != nil:
			log.Warn("figure cache read failed", "error", err)
			metrics.FigureCache.WithLabelValues("error").Inc()
		case ok:
			log.Info("loaded cached figure descriptions", "count", len(cached))
			metrics.FigureCache.WithLabelValues("hit").Inc()
			return cached
		default:
			metrics.FigureCache.WithLabelValues("miss").Inc()
		}
	}

	descs, complete := r.describer.Describe(ctx, images)
	log.Info("described figures", "images", len(images), "figures", len(descs), "complete", complete)
	if r.cache == nil {
		return descs
	}
	if !complete {
		log.Warn("figure descriptions incomplete, not caching")
		return descs
	}
	if err := r.cache.Put(ctx, docID, descs); err != nil {
		log.Warn("figure cache write failed", "error", err)
	}
	return descs
}
