package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/ingest"
)

// ingestRunner is the slice of ingest.Pipeline the handler needs.
type ingestRunner interface {
	IngestFiles(paths []string, ownerID string) (*ingest.Task, error)
	IngestURL(rawURL, ownerID string) (*ingest.Task, error)
	IngestGitHub(repoSpec, ref, ownerID string) (*ingest.Task, error)
}

type ingestHandler struct {
	pipeline  ingestRunner
	registry  ingest.Registry
	uploadDir string
	logger    *slog.Logger
}

// multipart memory ceiling before spilling to temp files.
const multipartMemoryLimit = 8 << 20

// uploadFiles handles POST /api/v1/ingest/files with multipart uploads.
// Files are persisted under the upload directory so the pipeline can
// read them after the request body is gone.
func (h *ingestHandler) uploadFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(ingest.MaxFilesPerUpload)*ingest.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing_files", "no files provided")
		return
	}
	if len(files) > ingest.MaxFilesPerUpload {
		writeError(w, http.StatusBadRequest, "too_many_files",
			fmt.Sprintf("at most %d files per upload", ingest.MaxFilesPerUpload))
		return
	}

	paths := make([]string, 0, len(files))
	for _, header := range files {
		if header.Size > ingest.MaxFileSize {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("%s exceeds the %d byte limit", header.Filename, ingest.MaxFileSize))
			return
		}
		path, err := h.saveUpload(header)
		if err != nil {
			h.logger.Error("saving upload failed", "file", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "upload_failed", "saving uploaded file failed")
			return
		}
		paths = append(paths, path)
	}

	task, err := h.pipeline.IngestFiles(paths, ownerID(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ingest_rejected", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// saveUpload writes one multipart file into a per-upload directory.
// The base name is kept so extraction sees the real extension.
func (h *ingestHandler) saveUpload(header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer func() { _ = src.Close() }()

	dir := filepath.Join(h.uploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	dst := filepath.Join(dir, filepath.Base(header.Filename))
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, io.LimitReader(src, ingest.MaxFileSize)); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return dst, nil
}

type ingestURLRequest struct {
	URL string `json:"url"`
}

// ingestURL handles POST /api/v1/ingest/url.
func (h *ingestHandler) ingestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing_url", "url is required")
		return
	}

	task, err := h.pipeline.IngestURL(req.URL, ownerID(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ingest_rejected", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

type ingestGitHubRequest struct {
	Repo string `json:"repo"`
	Ref  string `json:"ref"`
}

// ingestGitHub handles POST /api/v1/ingest/github.
func (h *ingestHandler) ingestGitHub(w http.ResponseWriter, r *http.Request) {
	var req ingestGitHubRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Repo == "" {
		writeError(w, http.StatusBadRequest, "missing_repo", "repo is required")
		return
	}

	task, err := h.pipeline.IngestGitHub(req.Repo, req.Ref, ownerID(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ingest_rejected", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// getTask handles GET /api/v1/ingest/tasks/{id}.
func (h *ingestHandler) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_task_id", "task id is not a valid UUID")
		return
	}

	task, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ingest.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		h.logger.Error("task lookup failed", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "task lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type taskListResponse struct {
	Tasks []*ingest.Task `json:"tasks"`
	Count int            `json:"count"`
}

// listTasks handles GET /api/v1/ingest/tasks.
func (h *ingestHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.registry.Recent(r.Context())
	if err != nil {
		h.logger.Error("task listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "task listing failed")
		return
	}
	if tasks == nil {
		tasks = []*ingest.Task{}
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: tasks, Count: len(tasks)})
}
