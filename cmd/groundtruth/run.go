package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/groundtruth/internal/document"
	"github.com/dgallion1/groundtruth/internal/parser"
	"github.com/dgallion1/groundtruth/internal/pipeline"
	"github.com/dgallion1/groundtruth/internal/workflow"
)

var (
	runWorkflow string
	runDocID    string
	runOutput   string
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a workflow over one paper and print the grounded result",
	Long: `Run a workflow synchronously over a single paper.

The file may be a .pdf, .docx, .md, .html, .txt or .csv paper, or a .json
document structure ({"text", "sections", "images", "tables"}) produced by
an external layout extractor. Only the JSON form carries images for figure
description.

Examples:
  groundtruth run paper.pdf
  groundtruth run structure.json --workflow quick-summary
  groundtruth run paper.md --workflow ./my-workflow.yaml -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ref := runWorkflow
		if ref == "" {
			ref = cfg.WorkflowFile
		}
		wf, err := workflow.Resolve(ref)
		if err != nil {
			return err
		}

		doc, err := loadDocument(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.runner.Run(ctx, pipeline.RunInput{DocID: runDocID, Document: doc, Workflow: wf})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if runOutput == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		}
		return os.WriteFile(runOutput, out, 0o644)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runWorkflow, "workflow", "w", "", "builtin workflow name or YAML file (default: WORKFLOW_FILE or "+workflow.DefaultName+")")
	runCmd.Flags().StringVar(&runDocID, "doc-id", "", "document id for the figure cache (default: content hash)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the result to a file instead of stdout")
}

// loadDocument reads a paper file, or a pre-extracted structure from JSON.
func loadDocument(path string) (*document.Structure, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read structure: %w", err)
		}
		var doc document.Structure
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode structure %s: %w", path, err)
		}
		return &doc, nil
	}

	p, err := parser.ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	doc, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
