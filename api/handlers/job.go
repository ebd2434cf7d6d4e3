package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"imageBatch/api/dto"
	"imageBatch/api/middleware"
	"imageBatch/api/service"
	"imageBatch/api/validation"
	"imageBatch/internal/repository"
)

var uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "image_batch",
	Subsystem: "api",
	Name:      "uploads_total",
	Help:      "Count of table uploads by result",
}, []string{"result"})

type JobService interface {
	CreateJob(ctx context.Context, traceID string, req *dto.CreateJobRequest) (*dto.UploadResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*dto.JobStatusResponse, error)
}

type JobHandler struct {
	service     JobService
	maxFileSize int64
	logger      *zap.Logger
}

func NewJobHandler(service JobService, maxFileSize int64, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service:     service,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

func (h *JobHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if h.maxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.reject(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.reject(w, "Failed to get file", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.CheckSize(header.Size, h.maxFileSize); err != nil {
		h.reject(w, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.handleError(w, "Failed to read file", err, traceID, http.StatusInternalServerError)
		return
	}

	filename := filepath.Base(header.Filename)
	if _, err := validation.DetectTableFormat(filename, data); err != nil {
		h.reject(w, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}

	webhookURL := strings.TrimSpace(r.FormValue("webhook_url"))
	if webhookURL != "" {
		if err := validation.WebhookURL(webhookURL); err != nil {
			h.reject(w, "Invalid webhook_url", err, traceID, http.StatusBadRequest)
			return
		}
	}

	resp, err := h.service.CreateJob(r.Context(), traceID, &dto.CreateJobRequest{
		Filename:   filename,
		Data:       data,
		WebhookURL: webhookURL,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidTable) {
			h.reject(w, "Invalid table", err, traceID, http.StatusBadRequest)
			return
		}
		uploadsTotal.WithLabelValues("error").Inc()
		h.handleError(w, "Failed to create job", err, traceID, http.StatusInternalServerError)
		return
	}

	uploadsTotal.WithLabelValues("accepted").Inc()
	h.logger.Info("Table uploaded",
		zap.String("trace_id", traceID),
		zap.String("job_id", resp.JobID),
		zap.String("filename", filename),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/status/"), "/")
	if jobID == "" {
		h.handleError(w, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetJobStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			h.handleError(w, "Job not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get job status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// reject answers a client error with the underlying reason in the body.
func (h *JobHandler) reject(w http.ResponseWriter, message string, err error, traceID string, status int) {
	uploadsTotal.WithLabelValues("rejected").Inc()
	if err != nil {
		message = message + ": " + err.Error()
	}
	h.handleError(w, message, err, traceID, status)
}

func (h *JobHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	log := h.logger.Error
	if status < http.StatusInternalServerError {
		log = h.logger.Warn
	}
	log(message,
		zap.String("trace_id", traceID),
		zap.Int("status", status),
		zap.Error(err),
	)

	h.respondJSON(w, status, dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *JobHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
