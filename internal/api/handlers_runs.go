package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/groundtruth/internal/document"
	"github.com/dgallion1/groundtruth/internal/parser"
	"github.com/dgallion1/groundtruth/internal/pipeline"
	"github.com/dgallion1/groundtruth/internal/workflow"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// runRequest submits an already-extracted document structure.
type runRequest struct {
	DocID       string              `json:"doc_id" validate:"omitempty,max=128,excludesall=/\\"`
	Workflow    string              `json:"workflow" validate:"omitempty,max=100"`
	WorkflowDef *workflow.Workflow  `json:"workflow_def" validate:"-"`
	Document    *document.Structure `json:"document" validate:"required"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req runRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Document.Text) == "" {
		jsonError(w, "document.text is empty", http.StatusBadRequest)
		return
	}

	wf, err := s.resolveWorkflow(req.Workflow, req.WorkflowDef)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.submit(w, pipeline.RunInput{DocID: req.DocID, Document: req.Document, Workflow: wf}, "")
}

// handleUploadRun parses an uploaded file into a document structure and
// submits it. Form fields: file, doc_id, workflow (builtin name) and
// workflow_yaml (inline definition).
func (s *Server) handleUploadRun(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	// Read file data.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	var def *workflow.Workflow
	if y := r.FormValue("workflow_yaml"); y != "" {
		parsed, err := workflow.Parse([]byte(y))
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		def = &parsed
	}
	wf, err := s.resolveWorkflow(r.FormValue("workflow"), def)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	docID := r.FormValue("doc_id")
	if docID == "" {
		docID = pipeline.ContentHashHex(data)[:16]
	}
	if err := validate.Var(docID, "max=128,excludesall=/\\"); err != nil {
		jsonError(w, "invalid doc_id", http.StatusBadRequest)
		return
	}

	p, err := parser.ForFile(filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		s.log.Warn("document parse failed", "filename", filename, "error", err)
		jsonError(w, "failed to parse document: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if strings.TrimSpace(doc.Text) == "" {
		jsonError(w, "document has no extractable text", http.StatusUnprocessableEntity)
		return
	}

	s.submit(w, pipeline.RunInput{DocID: docID, Document: doc, Workflow: wf}, filename)
}

func (s *Server) submit(w http.ResponseWriter, in pipeline.RunInput, filename string) {
	job := pipeline.NewJob(in, filename)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   snap.ID,
		"doc_id":   snap.DocID,
		"workflow": snap.Workflow,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/runs/%s", snap.ID),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	job := s.orchestrator.GetJob(runID)
	if job == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// resolveWorkflow prefers an inline definition, then a builtin name, then
// the server default. File paths are never resolved from requests.
func (s *Server) resolveWorkflow(name string, def *workflow.Workflow) (workflow.Workflow, error) {
	switch {
	case def != nil:
		if err := def.Validate(); err != nil {
			return workflow.Workflow{}, err
		}
		return *def, nil
	case name != "":
		return workflow.Builtin(name)
	default:
		return s.workflow, nil
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, strings.ToLower(fe.Field())+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
