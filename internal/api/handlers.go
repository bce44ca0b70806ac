package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/pipeline"
	"github.com/Caia-Tech/smartmeta/internal/processing"
	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/Caia-Tech/smartmeta/internal/temporal/workflows"
	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/logging"
	"github.com/Caia-Tech/smartmeta/pkg/metadata"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Handlers contains the HTTP handlers for the API
type Handlers struct {
	processor      *processing.Processor
	events         *pipeline.EventBus
	temporal       client.Client
	taskQueue      string
	archiveBatches bool
	logger         zerolog.Logger
}

// BatchOptions configures batch processing. A nil Client disables the batch
// endpoints.
type BatchOptions struct {
	Client    client.Client
	TaskQueue string
	Archive   bool
}

// NewHandlers creates a new handlers instance
func NewHandlers(processor *processing.Processor, events *pipeline.EventBus, batch BatchOptions) *Handlers {
	return &Handlers{
		processor:      processor,
		events:         events,
		temporal:       batch.Client,
		taskQueue:      batch.TaskQueue,
		archiveBatches: batch.Archive,
		logger:         logging.GetLogger("api"),
	}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	status := fiber.Map{
		"service":   "smartmeta",
		"version":   Version,
		"timestamp": time.Now().UTC(),
		"batches":   h.temporal != nil,
		"ocr":       extractor.OCRAvailable,
	}
	if err := h.processor.Health(c.UserContext()); err != nil {
		status["status"] = "unhealthy"
		status["error"] = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	status["status"] = "healthy"
	return c.JSON(status)
}

// UploadResponse represents the response for a file upload
type UploadResponse struct {
	ID         string                `json:"id"`
	Filename   string                `json:"filename"`
	Size       int64                 `json:"size"`
	Type       string                `json:"type"`
	Characters int                   `json:"characters"`
	Method     string                `json:"method"`
	LowText    bool                  `json:"low_text"`
	Preview    string                `json:"preview"`
	Warnings   []string              `json:"warnings,omitempty"`
	Pages      []document.PageResult `json:"pages,omitempty"`
}

func newUploadResponse(doc *document.Document) UploadResponse {
	return UploadResponse{
		ID:         doc.ID,
		Filename:   doc.Source.Filename,
		Size:       doc.Source.Size,
		Type:       doc.Source.Type,
		Characters: doc.CharCount(),
		Method:     doc.Report.Method,
		LowText:    doc.Report.LowText,
		Preview:    doc.Preview(document.PreviewLength),
		Warnings:   doc.Report.Warnings,
		Pages:      doc.Report.Pages,
	}
}

// UploadDocument extracts the text of an uploaded file
func (h *Handlers) UploadDocument(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "No file uploaded or invalid file format",
			"details": err.Error(),
		})
	}

	content, err := readFormFile(file)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", file.Filename).Msg("Failed to read uploaded file")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to read file content",
			"details": err.Error(),
		})
	}

	doc, err := h.processor.Upload(c.UserContext(), file.Filename, content)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newUploadResponse(doc))
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// DocumentSummary is one entry of the document list
type DocumentSummary struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Type        string    `json:"type"`
	Size        int64     `json:"size"`
	Characters  int       `json:"characters"`
	LowText     bool      `json:"low_text"`
	HasMetadata bool      `json:"has_metadata"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListDocuments returns the documents of the current session, newest first
func (h *Handlers) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.processor.List(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}

	summaries := make([]DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, DocumentSummary{
			ID:          doc.ID,
			Filename:    doc.Source.Filename,
			Type:        doc.Source.Type,
			Size:        doc.Source.Size,
			Characters:  doc.CharCount(),
			LowText:     doc.Report.LowText,
			HasMetadata: doc.Generated.Succeeded(),
			CreatedAt:   doc.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"documents": summaries,
		"total":     len(summaries),
	})
}

// GetDocument retrieves a document by ID
func (h *Handlers) GetDocument(c *fiber.Ctx) error {
	doc, err := h.processor.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(doc)
}

// GetDocumentText returns the full extracted text as text/plain
func (h *Handlers) GetDocumentText(c *fiber.Ctx) error {
	doc, err := h.processor.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(doc.Content.Text)
}

// DeleteDocument removes a document from the session
func (h *Handlers) DeleteDocument(c *fiber.Ctx) error {
	if err := h.processor.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MetadataResponse represents generated metadata
type MetadataResponse struct {
	DocumentID  string             `json:"document_id"`
	Filename    string             `json:"filename"`
	Model       string             `json:"model"`
	GeneratedAt time.Time          `json:"generated_at"`
	Overview    metadata.Overview  `json:"overview"`
	Metadata    *metadata.Metadata `json:"metadata"`
}

func newMetadataResponse(doc *document.Document) MetadataResponse {
	return MetadataResponse{
		DocumentID:  doc.ID,
		Filename:    doc.Source.Filename,
		Model:       doc.Generated.Model,
		GeneratedAt: doc.Generated.GeneratedAt,
		Overview:    doc.Generated.Metadata.Overview(),
		Metadata:    doc.Generated.Metadata,
	}
}

// GenerateMetadata asks the model for metadata about a document
func (h *Handlers) GenerateMetadata(c *fiber.Ctx) error {
	doc, err := h.processor.Generate(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(newMetadataResponse(doc))
}

// GetMetadata returns previously generated metadata
func (h *Handlers) GetMetadata(c *fiber.Ctx) error {
	doc, err := h.processor.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	if !doc.Generated.Succeeded() {
		return h.writeError(c, processing.ErrNoMetadata)
	}
	return c.JSON(newMetadataResponse(doc))
}

// DownloadMetadata sends the metadata as a JSON attachment
func (h *Handlers) DownloadMetadata(c *fiber.Ctx) error {
	filename, data, err := h.processor.Export(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// GetStats returns processing and event bus statistics
func (h *Handlers) GetStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"processing": h.processor.GetStats(),
	})
}

// GetEventStats returns event bus statistics
func (h *Handlers) GetEventStats(c *fiber.Ctx) error {
	if h.events == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Event bus is not running",
		})
	}
	return c.JSON(h.events.GetStats())
}

// BatchResponse represents the response for a started batch
type BatchResponse struct {
	WorkflowID string   `json:"workflow_id"`
	RunID      string   `json:"run_id"`
	Count      int      `json:"count"`
	Files      []string `json:"files"`
	Documents  []string `json:"document_ids"`
}

// CreateBatch starts a batch metadata workflow for the uploaded files
func (h *Handlers) CreateBatch(c *fiber.Ctx) error {
	if h.temporal == nil {
		return batchesDisabled(c)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid multipart form",
			"details": err.Error(),
		})
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one file is required",
		})
	}

	for _, fh := range headers {
		if !h.processor.Accepts(fh.Filename) {
			return h.writeError(c, fmt.Errorf("%w: %s", processing.ErrUnsupportedType, fh.Filename))
		}
	}

	// Files are staged in the session store; the workflow only carries IDs.
	input := workflows.BatchInput{Archive: h.archiveBatches}
	names := make([]string, 0, len(headers))
	ids := make([]string, 0, len(headers))
	for _, fh := range headers {
		content, err := readFormFile(fh)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Failed to read file content",
				"details": err.Error(),
			})
		}
		doc, err := h.processor.Stage(c.UserContext(), fh.Filename, content)
		if err != nil {
			return h.writeError(c, err)
		}
		input.Files = append(input.Files, workflows.FileInput{Filename: fh.Filename, DocumentID: doc.ID})
		names = append(names, fh.Filename)
		ids = append(ids, doc.ID)
	}

	workflowID := fmt.Sprintf("batch-%s", uuid.New().String())
	we, err := h.temporal.ExecuteWorkflow(c.UserContext(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.BatchMetadataWorkflow, input)
	if err != nil {
		h.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Failed to start batch workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start batch processing",
			"details": err.Error(),
		})
	}

	h.logger.Info().Str("workflow_id", workflowID).Int("files", len(names)).Msg("Started batch workflow")

	return c.Status(fiber.StatusAccepted).JSON(BatchResponse{
		WorkflowID: we.GetID(),
		RunID:      we.GetRunID(),
		Count:      len(names),
		Files:      names,
		Documents:  ids,
	})
}

// WorkflowStatusResponse represents the workflow status
type WorkflowStatusResponse struct {
	WorkflowID string                 `json:"workflow_id"`
	Status     string                 `json:"status"`
	StartTime  time.Time              `json:"start_time"`
	CloseTime  *time.Time             `json:"close_time,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Result     *workflows.BatchResult `json:"result,omitempty"`
}

// GetWorkflow returns the status of a batch and, once it finished, its result
func (h *Handlers) GetWorkflow(c *fiber.Ctx) error {
	if h.temporal == nil {
		return batchesDisabled(c)
	}

	workflowID := c.Params("id")
	ctx := c.UserContext()

	resp, err := h.temporal.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		h.logger.Warn().Err(err).Str("workflow_id", workflowID).Msg("Failed to describe workflow")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":       "Workflow not found",
			"workflow_id": workflowID,
		})
	}

	info := resp.GetWorkflowExecutionInfo()
	response := WorkflowStatusResponse{
		WorkflowID: workflowID,
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		response.CloseTime = &closeTime
	}

	switch info.GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var result workflows.BatchResult
		if err := h.temporal.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
			response.Error = err.Error()
		} else {
			response.Result = &result
		}
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		response.Error = "Workflow did not complete - check Temporal UI for details"
	}

	return c.JSON(response)
}

func batchesDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "Batch processing is not available: no Temporal host configured",
	})
}

// writeError maps domain errors to HTTP statuses. Provider responses are not
// passed through to clients.
func (h *Handlers) writeError(c *fiber.Ctx, err error) error {
	var (
		procErr  *extractor.ProcessingError
		parseErr *metadata.ParseError
		apiErr   *llm.APIError
	)

	status := fiber.StatusInternalServerError
	body := fiber.Map{"error": "Internal server error", "details": err.Error()}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = fiber.StatusNotFound
		body = fiber.Map{"error": "Document not found", "details": "it may have expired; please upload it again"}
	case errors.Is(err, processing.ErrUnsupportedType):
		status = fiber.StatusUnsupportedMediaType
		body["error"] = "Unsupported file type"
	case errors.Is(err, processing.ErrFileTooLarge):
		status = fiber.StatusRequestEntityTooLarge
		body["error"] = "File too large"
	case errors.Is(err, processing.ErrEmptyFile):
		status = fiber.StatusBadRequest
		body["error"] = "Uploaded file is empty"
	case errors.Is(err, processing.ErrInsufficientText):
		status = fiber.StatusUnprocessableEntity
		body["error"] = "Insufficient text content for metadata generation"
	case errors.Is(err, processing.ErrNoMetadata):
		status = fiber.StatusNotFound
		body["error"] = "No metadata generated yet"
	case errors.As(err, &parseErr):
		status = fiber.StatusUnprocessableEntity
		body = fiber.Map{
			"error":        "Failed to parse JSON response",
			"details":      parseErr.Err.Error(),
			"raw_response": parseErr.Raw,
		}
	case errors.As(err, &procErr):
		status = fiber.StatusUnprocessableEntity
		body["error"] = "Text extraction failed"
	case errors.Is(err, llm.ErrMissingAPIKey):
		status = fiber.StatusServiceUnavailable
		body = fiber.Map{"error": "Metadata generation is not configured", "details": "no model API key set"}
	case errors.As(err, &apiErr):
		status = fiber.StatusBadGateway
		body = fiber.Map{"error": "Model provider error", "details": apiErr.Public()}
	case errors.Is(err, llm.ErrEmptyResponse):
		status = fiber.StatusBadGateway
		body = fiber.Map{"error": "Model provider error", "details": "empty response"}
	case errors.Is(err, llm.ErrProviderUnavailable):
		status = fiber.StatusBadGateway
		body = fiber.Map{"error": "Model provider error", "details": "model provider is unreachable"}
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
		body["error"] = "Request timed out"
	}

	event := h.logger.Warn()
	if status >= fiber.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).Int("status", status).Str("path", c.Path()).Msg("Request failed")

	return c.Status(status).JSON(body)
}
