package extract

import (
	"encoding/json"
	"fmt"

	"github.com/dgallion1/groundtruth/internal/llm"
	"github.com/dgallion1/groundtruth/internal/workflow"
)

// SystemPrompt frames every extraction and synthesis call.
const SystemPrompt = "You are an R&D assistant for biomedical researchers. Return valid JSON only."

const (
	temperature = 0.2
	maxTokens   = 4096
)

// chunkContext tells the model which part of the paper it is reading.
func chunkContext(heading string, i, n int) string {
	return fmt.Sprintf("This is section '%s' (part %d of %d from the full paper).", heading, i+1, n)
}

// buildChunkRequest renders the workflow prompt for one chunk. context is
// prepended when the document was split.
func buildChunkRequest(wf workflow.Workflow, text, context string) llm.Request {
	user := wf.Render(text)
	if context != "" {
		user = context + "\n\n" + user
	}
	return llm.Request{
		Messages:    []llm.Message{llm.System(SystemPrompt), llm.User(user)},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSONMode:    true,
	}
}

type partialOutput struct {
	Section string         `json:"section"`
	Output  map[string]any `json:"output"`
}

const synthesisTemplate = `You are given multiple partial analyses of different sections of the same scientific paper.
Merge them into ONE final comprehensive JSON output using the exact schema below.

Rules:
- Combine all key_findings, biomarkers, patient_population, follow_up_hypotheses, and supporting_quotes from all sections.
- Remove duplicates but keep all unique information.
- Write a single cohesive tldr that covers the entire paper.
- For trial_phase_signals: use the most specific phase mentioned across all sections.
- For confidence: use the overall confidence level considering all evidence.
- supporting_quotes: select the 4-6 most impactful quotes across all sections.
- **CRITICAL**: For figures_and_tables_summary, use the paper's OWN figure and table numbering (e.g. Figure 1, Figure 2, Table 1), NOT extraction image numbers. Include EVERY figure and table referenced in the paper text. Do NOT invent figure/table numbers that don't exist in the paper.
- Return JSON only (no markdown).

SCHEMA:
%s

PARTIAL ANALYSES:
%s`

func buildSynthesisRequest(schema string, partials []partialOutput) (llm.Request, error) {
	body, err := json.MarshalIndent(partials, "", "  ")
	if err != nil {
		return llm.Request{}, fmt.Errorf("marshal partials: %w", err)
	}
	return llm.Request{
		Messages: []llm.Message{
			llm.System(SystemPrompt),
			llm.User(fmt.Sprintf(synthesisTemplate, schema, body)),
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSONMode:    true,
	}, nil
}
