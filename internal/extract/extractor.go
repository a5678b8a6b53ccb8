// Package extract turns document text into structured JSON by running a
// workflow prompt over each chunk and synthesizing the partial outputs.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/groundtruth/internal/chunker"
	"github.com/dgallion1/groundtruth/internal/document"
	"github.com/dgallion1/groundtruth/internal/figures"
	"github.com/dgallion1/groundtruth/internal/llm"
	"github.com/dgallion1/groundtruth/internal/workflow"
)

// ErrNoText is returned when the document has nothing to extract from.
var ErrNoText = errors.New("document has no extractable text")

// DefaultConcurrency bounds parallel chunk calls.
const DefaultConcurrency = 4

// Config tunes the extractor.
type Config struct {
	Chunk       chunker.Config
	Concurrency int
}

// Input is one extraction request.
type Input struct {
	Workflow workflow.Workflow
	Text     string
	Sections []document.Section
	Figures  []document.FigureDescription
}

// Result is the outcome of an extraction. Parsed is nil when no chunk
// produced a JSON object.
type Result struct {
	Parsed       map[string]any           `json:"parsed"`
	Raw          string                   `json:"raw"`
	Figures      []document.MatchedFigure `json:"figure_descriptions,omitempty"`
	Chunks       int                      `json:"chunks"`
	Partials     int                      `json:"partials"`
	Synthesized  bool                     `json:"synthesized"`
	SchemaIssues []string                 `json:"schema_issues,omitempty"`
}

// Extractor runs workflows against an LLM.
type Extractor struct {
	llm llm.Completer
	cfg Config
	log *slog.Logger
}

// New creates an Extractor. Zero config values fall back to defaults.
func New(c llm.Completer, cfg Config, log *slog.Logger) *Extractor {
	if cfg.Chunk.MaxChunkChars <= 0 {
		cfg.Chunk = chunker.DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{llm: c, cfg: cfg, log: log}
}

// Extract matches figures to the text, chunks it and runs the workflow.
// Any LLM call error aborts the extraction.
func (e *Extractor) Extract(ctx context.Context, in Input) (*Result, error) {
	matched := figures.Match(in.Text, in.Figures)
	text := document.EnrichText(in.Text, matched)

	chunks := chunker.Split(text, in.Sections, e.cfg.Chunk)
	if len(chunks) == 0 {
		return nil, ErrNoText
	}
	e.log.Info("extracting",
		"workflow", in.Workflow.Name,
		"chunks", len(chunks),
		"est_tokens", chunker.TotalTokens(chunks),
		"figures", len(matched),
	)

	res := &Result{Figures: matched, Chunks: len(chunks)}

	if len(chunks) == 1 {
		raw, err := e.llm.Complete(llm.WithOperation(ctx, "extract"), buildChunkRequest(in.Workflow, chunks[0].Content, ""))
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		res.Raw = raw
		if parsed, err := llm.ParseObject(raw); err == nil {
			res.Parsed = cleanOutput(parsed).(map[string]any)
			res.Partials = 1
		} else {
			e.log.Warn("extraction output not parseable", "error", err)
		}
		res.SchemaIssues = e.outputIssues(in.Workflow.OutputSchema, res.Parsed)
		return res, nil
	}

	partials, err := e.runChunks(ctx, in.Workflow, chunks)
	if err != nil {
		return nil, err
	}
	res.Partials = len(partials)
	if len(partials) == 0 {
		e.log.Warn("no chunk produced parseable output", "chunks", len(chunks))
		return res, nil
	}

	raw, parsed, err := e.synthesize(ctx, in.Workflow.OutputSchema, partials)
	if err != nil {
		return nil, err
	}
	res.Raw = raw
	res.Synthesized = parsed != nil
	if parsed == nil {
		e.log.Warn("synthesis output not parseable, merging partials")
		parsed = Merge(outputs(partials))
	}
	resolveTieBreaks(parsed, outputs(partials))
	res.Parsed = parsed
	res.SchemaIssues = e.outputIssues(in.Workflow.OutputSchema, res.Parsed)
	return res, nil
}

// outputIssues combines schema warnings with strings that look like
// instructions to the model. Neither changes the output.
func (e *Extractor) outputIssues(schema string, parsed map[string]any) []string {
	issues := CheckSchema(schema, parsed)
	if parsed == nil {
		return issues
	}
	for _, s := range instructionLike(parsed) {
		e.log.Warn("instruction-like text in extraction output", "text", s)
		issues = append(issues, fmt.Sprintf("instruction-like text: %q", s))
	}
	return issues
}

func (e *Extractor) runChunks(ctx context.Context, wf workflow.Workflow, chunks []document.Chunk) ([]partialOutput, error) {
	slots := make([]*partialOutput, len(chunks))
	opCtx := llm.WithOperation(ctx, "extract")

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			req := buildChunkRequest(wf, c.Content, chunkContext(c.Heading, i, len(chunks)))
			raw, err := e.llm.Complete(opCtx, req)
			if err != nil {
				return fmt.Errorf("chunk %d (%s): %w", i+1, c.Heading, err)
			}
			parsed, err := llm.ParseObject(raw)
			if err != nil {
				e.log.Warn("chunk output not parseable", "chunk", i+1, "section", c.Heading, "error", err)
				return nil
			}
			slots[i] = &partialOutput{Section: c.Heading, Output: cleanOutput(parsed).(map[string]any)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	partials := make([]partialOutput, 0, len(slots))
	for _, p := range slots {
		if p != nil {
			partials = append(partials, *p)
		}
	}
	return partials, nil
}

// synthesize returns the raw synthesis text and its parsed form, which is
// nil when the reply is not a JSON object.
func (e *Extractor) synthesize(ctx context.Context, schema string, partials []partialOutput) (string, map[string]any, error) {
	req, err := buildSynthesisRequest(schema, partials)
	if err != nil {
		return "", nil, err
	}
	raw, err := e.llm.Complete(llm.WithOperation(ctx, "synthesize"), req)
	if err != nil {
		return "", nil, fmt.Errorf("synthesize: %w", err)
	}
	parsed, err := llm.ParseObject(raw)
	if err != nil {
		return raw, nil, nil
	}
	return raw, cleanOutput(parsed).(map[string]any), nil
}

func outputs(partials []partialOutput) []map[string]any {
	out := make([]map[string]any, len(partials))
	for i, p := range partials {
		out[i] = p.Output
	}
	return out
}
