package workflows

import (
	"path/filepath"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/metadata"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Activity names for registration
const (
	ExtractTextActivityName      = "ExtractTextActivity"
	GenerateMetadataActivityName = "GenerateMetadataActivity"
	ArchiveMetadataActivityName  = "ArchiveMetadataActivity"
)

// Error types activities use for failures that retrying cannot fix.
const (
	ProcessingErrorType       = "ProcessingError"
	ParseErrorType            = "ParseError"
	InsufficientTextErrorType = "InsufficientTextError"
	ProviderErrorType         = "ProviderError"
	NotFoundErrorType         = "NotFoundError"
)

// File statuses reported in FileResult.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped" // extracted, but too little text for generation
)

// FileInput refers to one file of a batch. File bytes never travel through
// workflow history: either DocumentID names an upload already staged in the
// worker's processor, or Path names a file readable by the worker.
type FileInput struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	Path       string `json:"path,omitempty"`
}

// BatchInput represents the input for the batch metadata workflow
type BatchInput struct {
	Files   []FileInput `json:"files"`
	Archive bool        `json:"archive"`
}

// ExtractOutput summarizes an extracted and stored document
type ExtractOutput struct {
	DocumentID string   `json:"document_id"`
	Characters int      `json:"characters"`
	Method     string   `json:"method"`
	LowText    bool     `json:"low_text"`
	Warnings   []string `json:"warnings,omitempty"`
}

// GenerateOutput carries the parsed metadata of one document
type GenerateOutput struct {
	Model    string             `json:"model"`
	Metadata *metadata.Metadata `json:"metadata"`
}

// FileResult is the outcome for one file of the batch
type FileResult struct {
	Filename   string             `json:"filename"`
	DocumentID string             `json:"document_id,omitempty"`
	Status     string             `json:"status"`
	Characters int                `json:"characters"`
	Method     string             `json:"method,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Metadata   *metadata.Metadata `json:"metadata,omitempty"`
	Archived   bool               `json:"archived"`
	Error      string             `json:"error,omitempty"`
}

// BatchResult is returned by BatchMetadataWorkflow
type BatchResult struct {
	Files     []FileResult `json:"files"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
}

// BatchMetadataWorkflow extracts text from every file, generates metadata
// for it and optionally archives the result. A failing file is recorded in
// the result and does not stop the batch.
func BatchMetadataWorkflow(ctx workflow.Context, input BatchInput) (*BatchResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch metadata generation", "files", len(input.Files))

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute, // Longer timeout for OCR processing
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			NonRetryableErrorTypes: []string{
				ProcessingErrorType,
				ParseErrorType,
				InsufficientTextErrorType,
				ProviderErrorType,
				NotFoundErrorType,
			},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	result := &BatchResult{Files: make([]FileResult, 0, len(input.Files))}
	for _, file := range input.Files {
		fr := processFile(ctx, file, input.Archive)
		switch fr.Status {
		case StatusCompleted:
			result.Completed++
		case StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
			logger.Warn("File failed", "filename", fr.Filename, "error", fr.Error)
		}
		result.Files = append(result.Files, fr)
	}

	logger.Info("Batch metadata generation completed",
		"completed", result.Completed, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

func processFile(ctx workflow.Context, file FileInput, archive bool) FileResult {
	fr := FileResult{Filename: file.Filename, Status: StatusFailed}
	if fr.Filename == "" && file.Path != "" {
		fr.Filename = filepath.Base(file.Path)
	}

	var extracted ExtractOutput
	if err := workflow.ExecuteActivity(ctx, ExtractTextActivityName, file).Get(ctx, &extracted); err != nil {
		fr.Error = err.Error()
		return fr
	}
	fr.DocumentID = extracted.DocumentID
	fr.Characters = extracted.Characters
	fr.Method = extracted.Method
	fr.Warnings = extracted.Warnings

	if extracted.LowText {
		fr.Status = StatusSkipped
		return fr
	}

	var generated GenerateOutput
	if err := workflow.ExecuteActivity(ctx, GenerateMetadataActivityName, extracted.DocumentID).Get(ctx, &generated); err != nil {
		fr.Error = err.Error()
		return fr
	}
	fr.Metadata = generated.Metadata

	if archive {
		if err := workflow.ExecuteActivity(ctx, ArchiveMetadataActivityName, extracted.DocumentID).Get(ctx, nil); err != nil {
			fr.Error = err.Error()
			return fr
		}
		fr.Archived = true
	}

	fr.Status = StatusCompleted
	return fr
}
