// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/model"
	"github.com/hoangtv090103/text-to-video/internal/orchestrator"
	"github.com/hoangtv090103/text-to-video/internal/queue"
	"github.com/hoangtv090103/text-to-video/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// handleSubmit accepts a multipart document upload and enqueues a job.
// The size cap is enforced while reading, so an oversized body is rejected
// without buffering it.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+4096) // headroom for multipart framing

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d MB limit", s.cfg.Upload.MaxSizeMB))
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !s.cfg.TypeAllowed(ext) {
		s.writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported document type %q, allowed: %s", ext, strings.Join(s.cfg.Upload.AllowedTypes, ", ")))
		return
	}

	path := filepath.Join(s.uploadDir, uuid.NewString()+"."+ext)
	size, err := s.saveUpload(file, path, maxBytes)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d MB limit", s.cfg.Upload.MaxSizeMB))
			return
		}
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("upload save failed")
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	source := model.SourceDoc{
		Path:     path,
		Filename: header.Filename,
		Type:     ext,
		Size:     size,
	}
	priority := model.ParsePriority(r.FormValue("priority"))

	jobID, err := s.orch.Submit(r.Context(), source, priority)
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, queue.ErrQueueFull) {
			s.writeError(w, http.StatusServiceUnavailable, "job queue full, try again later")
			return
		}
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("submit failed")
		s.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   jobID,
		"status":   string(model.StatusPending),
		"priority": priority.String(),
	})
}

var errUploadTooLarge = errors.New("upload too large")

// saveUpload streams the part to disk, counting bytes against the cap.
// Exactly the cap is accepted; one byte over is rejected.
func (s *Server) saveUpload(src io.Reader, path string, maxBytes int64) (int64, error) {
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return 0, err
	}
	defer pf.Cleanup()

	n, err := io.Copy(pf, io.LimitReader(src, maxBytes+1))
	if err != nil {
		return 0, err
	}
	if n > maxBytes {
		return 0, errUploadTooLarge
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	views := s.orch.List(status)
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit >= 0 && limit < len(views) {
		views = views[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  views,
		"count": len(views),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	err := s.orch.Cancel(jobID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelling"})
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, orchestrator.ErrJobTerminal):
		s.writeError(w, http.StatusConflict, "job already finished")
	default:
		s.writeError(w, http.StatusInternalServerError, "cancel failed")
	}
}

// handleDownload serves the composed video for a finished job.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.orch.Job(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}

	if job.Video == nil || job.Video.Path == "" {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("job is %s, no video available", job.Status))
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+".mp4"))
	http.ServeFile(w, r, job.Video.Path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Degraded still answers 200; callers read the status field.
	s.writeJSON(w, http.StatusOK, s.checker.Check(r.Context()))
}
