package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/pipeline"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// SuccessMessage is returned with every processed request
const SuccessMessage = "Data processed correctly"

// PipelineRequest is the body of both pipeline endpoints. Config is either
// a configuration alias or path, as a JSON string, or the pipeline document
// itself as a JSON object.
type PipelineRequest struct {
	Config       json.RawMessage `json:"config"`
	Data         []string        `json:"data"`
	CorpusPath   string          `json:"corpus_path,omitempty"`
	ProcessAlias string          `json:"process_alias,omitempty"`
	Persist      bool            `json:"persist"`
}

// PipelineResponse is returned on success
type PipelineResponse struct {
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	ProcessedData any      `json:"processedData"`
	RunID         string   `json:"run_id"`
	Stages        []string `json:"stages"`
	Skipped       []string `json:"skipped,omitempty"`
	PersistedTo   []string `json:"persisted_to,omitempty"`
}

// ErrorResponse is returned on failure
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) handlePipelineSequence(w http.ResponseWriter, r *http.Request) {
	s.runPipeline(w, r, false)
}

func (s *Server) handleSpecificProcess(w http.ResponseWriter, r *http.Request) {
	s.runPipeline(w, r, true)
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request, single bool) {
	ctx := r.Context()

	var req PipelineRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil {
		writeError(w, err)
		return
	}
	if single && req.ProcessAlias == "" {
		writeError(w, apperrors.BadRequest("process_alias is required"))
		return
	}
	if !single {
		req.ProcessAlias = ""
	}

	p, err := s.openPipeline(req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	src, err := s.openCorpus(r, req)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := pipeline.Run(ctx, p, req.ProcessAlias, src, req.Persist)
	if err != nil {
		writeError(w, err)
		return
	}

	var processed any
	if out.Features != nil {
		processed = out.Features.Dense()
	} else {
		records, err := out.Records(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		if records == nil {
			records = []string{}
		}
		processed = records
	}

	writeJSON(w, http.StatusOK, PipelineResponse{
		Status:        "success",
		Message:       SuccessMessage,
		ProcessedData: processed,
		RunID:         out.RunID.String(),
		Stages:        out.Stages,
		Skipped:       out.Skipped,
		PersistedTo:   out.Persisted(),
	})
}

func (s *Server) openPipeline(raw json.RawMessage) (*pipeline.Pipeline, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, apperrors.BadRequest("config is required")
	}

	switch trimmed[0] {
	case '"':
		var ref string
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return nil, apperrors.BadRequest("config must be a string or an object")
		}
		return s.pipelines.OpenAlias(ref)
	case '{':
		doc, err := pipeline.ParseDocument(trimmed)
		if err != nil {
			return nil, err
		}
		for _, path := range doc.Paths() {
			if s.uploads == nil || !within(s.uploads.BasePath(), path) {
				return nil, apperrors.BadRequest("config paths must point inside the storage directory").
					WithDetails("path", path)
			}
		}
		return s.pipelines.Build(doc)
	}
	return nil, apperrors.BadRequest("config must be a string or an object")
}

// openCorpus prefers inline data. A corpus path must point inside the
// upload store.
func (s *Server) openCorpus(r *http.Request, req PipelineRequest) (*corpus.Source, error) {
	if req.CorpusPath == "" {
		if req.Data == nil {
			return nil, apperrors.InvalidCorpus(nil)
		}
		return corpus.FromList(req.Data), nil
	}
	if len(req.Data) > 0 {
		return nil, apperrors.BadRequest("data and corpus_path are mutually exclusive")
	}
	if s.uploads == nil || s.readers == nil {
		return nil, apperrors.BadRequest("corpus files are not enabled on this server")
	}
	if !within(s.uploads.BasePath(), req.CorpusPath) {
		return nil, apperrors.BadRequest("corpus_path must point to an uploaded corpus")
	}
	src, err := s.readers.Open(r.Context(), req.CorpusPath)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}
	return src, nil
}

func within(base, path string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absPath)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil || s.readers == nil {
		writeError(w, apperrors.NotFound("uploads are not enabled on this server"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.BadRequest("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !s.readers.IsSupported(ext) {
		writeError(w, apperrors.BadRequest(fmt.Sprintf("unsupported corpus format %q", ext)))
		return
	}

	meta, err := s.uploads.SaveUpload(r.Context(), uuid.New().String(), header.Filename, file)
	if err != nil {
		writeError(w, apperrors.InternalWrap(err, "failed to store upload"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":      "success",
		"file_id":     meta.ID,
		"corpus_path": meta.StoredPath,
		"size":        meta.Size,
		"hash":        meta.Hash,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, apperrors.NotFound("run history is disabled"))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apperrors.BadRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	counts, err := s.runs.CountByStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"counts": counts,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, apperrors.NotFound("run history is disabled"))
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid run id"))
		return
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   s.version,
		"processes": pipeline.Registered(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.New(apperrors.ErrCodeBadRequest, "request body too large", http.StatusRequestEntityTooLarge)
		}
		if errors.Is(err, io.EOF) {
			return apperrors.BadRequest("request body is empty")
		}
		return apperrors.BadRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{
		Status:  "error",
		Code:    string(apperrors.ErrCodeInternal),
		Message: "internal error",
	}
	if appErr, ok := apperrors.GetAppError(err); ok {
		resp.Code = string(appErr.Code)
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	}
	writeJSON(w, apperrors.StatusCode(err), resp)
}
