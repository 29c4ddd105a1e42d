package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/cuongbtq/papergen/internal/api/dto"
	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/cuongbtq/papergen/internal/gateway"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderJobID names the job that produced a raw response body
const HeaderJobID = "X-Job-ID"

// Generate handles POST /api/generate and POST /api/v1/generate
// Runs one generation job over the uploaded documents and returns its output
func (h *JobHandler) Generate(c *gin.Context) {
	items, err := h.readItems(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.gateway.Generate(c.Request.Context(), items)
	if err != nil {
		h.fail(c, err)
		return
	}

	if acceptsRaw(c.GetHeader("Accept"), result.ContentType) {
		c.Header(HeaderJobID, result.JobID)
		c.Data(http.StatusOK, result.ContentType, result.Data)
		return
	}

	c.JSON(http.StatusOK, dto.GenerateResponse{
		JobID: result.JobID,
		PDF:   base64.StdEncoding.EncodeToString(result.Data),
	})
}

func (h *JobHandler) readItems(c *gin.Context) ([]gateway.Item, error) {
	switch c.ContentType() {
	case gin.MIMEMultipartPOSTForm:
		form, err := c.MultipartForm()
		if err != nil {
			return nil, bodyError(err)
		}
		return readMultipart(form, h.gateway.Limits())
	case gin.MIMEJSON, "":
		var req dto.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, bodyError(err)
		}
		return h.gateway.Limits().DecodeBase64(req.Files)
	default:
		return nil, domain.NewValidationError("unsupported content type %q", c.ContentType())
	}
}

// readMultipart collects repeated "files" parts first, then file0, file1, ...
// ordered by index.
func readMultipart(form *multipart.Form, limits gateway.Limits) ([]gateway.Item, error) {
	headers := append([]*multipart.FileHeader(nil), form.File["files"]...)

	type indexed struct {
		index int
		files []*multipart.FileHeader
	}
	var numbered []indexed
	for field, files := range form.File {
		rest, ok := strings.CutPrefix(field, "file")
		if !ok {
			continue
		}
		index, err := strconv.Atoi(rest)
		if err != nil || index < 0 {
			continue
		}
		numbered = append(numbered, indexed{index: index, files: files})
	}
	sort.Slice(numbered, func(i, j int) bool { return numbered[i].index < numbered[j].index })
	for _, n := range numbered {
		headers = append(headers, n.files...)
	}

	if limits.MaxItems > 0 && len(headers) > limits.MaxItems {
		return nil, domain.NewValidationError("too many documents: %d (max %d)", len(headers), limits.MaxItems)
	}

	items := make([]gateway.Item, 0, len(headers))
	for i, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		name := fh.Filename
		if name == "" {
			name = "file" + strconv.Itoa(i)
		}
		items = append(items, gateway.Item{Name: name, Data: data})
	}
	return items, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

// bodyError turns a body read or decode failure into a validation error
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.NewTooLargeError("request body exceeds %d bytes", tooLarge.Limit)
	}
	return domain.NewValidationError("invalid request body")
}

// acceptsRaw reports whether the Accept header names contentType exactly.
// Wildcards keep the JSON envelope.
func acceptsRaw(accept, contentType string) bool {
	if accept == "" || contentType == "" {
		return false
	}
	want, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == want {
			return true
		}
	}
	return false
}

func (h *JobHandler) fail(c *gin.Context, err error) {
	f := gateway.DescribeFailure(err)
	if f.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(f.Status, dto.ErrorResponse{Error: f.Message})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the status of a live job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Debug("Invalid job_id format", slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be a valid UUID"})
		return
	}

	snapshot, err := h.jobs.Get(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, dto.ToJobDTO(snapshot))
}

// Health handles GET /health
func (h *JobHandler) Health(c *gin.Context) {
	jobs := make(map[string]int)
	for status, n := range h.jobs.Stats() {
		jobs[string(status)] = n
	}

	c.JSON(http.StatusOK, dto.HealthResponse{
		Status: "healthy",
		Jobs:   jobs,
	})
}
