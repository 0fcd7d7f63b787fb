package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/case-intake/internal/config"
	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
	"github.com/kirillkom/case-intake/internal/observability/metrics"
)

const (
	multipartMemory     = 32 << 20
	defaultInlineWait   = 5 * time.Minute
	sniffContentTypeLen = 512
)

// BatchPublisher hands an accepted batch to the worker fleet.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, batch domain.Batch) error
}

type Router struct {
	cfg       config.Config
	intake    ports.DocumentIntake
	reader    ports.IntakeReader
	publisher BatchPublisher
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger

	// background runs batches that could not be published.
	background func(func())
}

func NewRouter(
	cfg config.Config,
	intake ports.DocumentIntake,
	reader ports.IntakeReader,
	publisher BatchPublisher,
) *Router {
	return &Router{
		cfg:        cfg,
		intake:     intake,
		reader:     reader,
		publisher:  publisher,
		logger:     slog.Default(),
		background: func(fn func()) { go fn() },
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		rt.logger = logger
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/cases/{caseID}/documents", rt.uploadDocuments)
	mux.HandleFunc("GET /v1/cases/{caseID}", rt.getCase)
	mux.HandleFunc("GET /v1/documents/{documentID}", rt.getDocument)
	mux.HandleFunc("GET /v1/batches/{batchID}", rt.getBatch)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	controlled := backpressureMiddleware(mux, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	controlled = rateLimitMiddleware(controlled, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	var handler http.Handler = exemptPaths(controlled, mux, "/healthz", "/metrics")
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	handler = tracingMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadDocuments accepts one or more files in the repeated multipart field
// "file". By default the batch is queued and 202 is returned; wait=true runs
// the pipeline in the request and returns the settled result.
func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	caseID := strings.TrimSpace(r.PathValue("caseID"))
	if caseID == "" {
		writeError(w, r, http.StatusBadRequest, "case id is required")
		return
	}

	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "multipart form is required")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, r, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}

	files := make([]domain.UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := readUploadFile(header)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		files = append(files, file)
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	batch, err := rt.intake.Upload(r.Context(), caseID, files)
	if err != nil {
		rt.recordUpload(0, len(files))
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	rt.recordUpload(len(batch.DocumentIDs), batch.Rejected)

	if wait {
		rt.processInline(w, r, *batch)
		return
	}

	if err := rt.publish(r.Context(), *batch); err != nil {
		rt.logger.Warn("batch_publish_failed",
			"request_id", requestIDFromContext(r.Context()),
			"batch_id", batch.ID,
			"case_id", batch.CaseID,
			"error", err,
		)
		rt.processDetached(r.Context(), *batch)
	}
	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) processInline(w http.ResponseWriter, r *http.Request, batch domain.Batch) {
	timeout := rt.cfg.APIInlineWaitTimeout
	if timeout <= 0 {
		timeout = defaultInlineWait
	}
	// Client disconnects must not cancel a batch whose files are already stored.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	result, err := rt.intake.ProcessBatch(ctx, batch)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) publish(ctx context.Context, batch domain.Batch) error {
	if rt.publisher == nil {
		return errors.New("no batch publisher configured")
	}
	return rt.publisher.PublishBatch(ctx, batch)
}

func (rt *Router) processDetached(ctx context.Context, batch domain.Batch) {
	timeout := rt.cfg.BatchTimeout
	if timeout <= 0 {
		timeout = defaultInlineWait
	}
	detached := context.WithoutCancel(ctx)
	rt.background(func() {
		runCtx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		if _, err := rt.intake.ProcessBatch(runCtx, batch); err != nil {
			rt.logger.Error("batch_process_failed", "batch_id", batch.ID, "case_id", batch.CaseID, "error", err)
		}
	})
}

func (rt *Router) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := rt.reader.GetCase(r.Context(), r.PathValue("caseID"))
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.reader.GetDocument(r.Context(), r.PathValue("documentID"))
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := rt.reader.GetBatch(r.Context(), r.PathValue("batchID"))
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (rt *Router) recordUpload(accepted, rejected int) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(accepted, rejected)
	}
}

func readUploadFile(header *multipart.FileHeader) (domain.UploadFile, error) {
	file, err := header.Open()
	if err != nil {
		return domain.UploadFile{}, errors.New("cannot open uploaded file " + header.Filename)
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		return domain.UploadFile{}, errors.New("cannot read uploaded file " + header.Filename)
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		sniff := body
		if len(sniff) > sniffContentTypeLen {
			sniff = sniff[:sniffContentTypeLen]
		}
		mimeType = http.DetectContentType(sniff)
	}

	return domain.UploadFile{
		Filename: header.Filename,
		MimeType: mimeType,
		Size:     int64(len(body)),
		Body:     body,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	payload := map[string]string{"error": message}
	if requestID := requestIDFromContext(r.Context()); requestID != "" {
		payload["request_id"] = requestID
	}
	writeJSON(w, status, payload)
}
