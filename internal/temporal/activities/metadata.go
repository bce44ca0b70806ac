package activities

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/pipeline"
	"github.com/Caia-Tech/smartmeta/internal/processing"
	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/Caia-Tech/smartmeta/internal/temporal/workflows"
	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/metadata"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Activities runs batch steps against the processor of the worker process.
// Documents live in that processor's session store, so all activities of a
// batch must run on workers sharing it.
type Activities struct {
	processor *processing.Processor
	archive   pipeline.Archiver
}

// NewActivities creates the batch activities. archive may be nil, in which
// case archiving is a no-op.
func NewActivities(processor *processing.Processor, archive pipeline.Archiver) *Activities {
	return &Activities{processor: processor, archive: archive}
}

// ExtractTextActivity extracts, cleans and stores one file, either a staged
// upload or a file on the worker's disk.
func (a *Activities) ExtractTextActivity(ctx context.Context, input workflows.FileInput) (workflows.ExtractOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Extracting text", "filename", input.Filename, "documentID", input.DocumentID, "path", input.Path)

	doc, err := a.extract(ctx, input)
	if err != nil {
		return workflows.ExtractOutput{}, classify(fmt.Errorf("failed to extract text: %w", err))
	}

	logger.Info("Text extracted successfully", "documentID", doc.ID, "characters", doc.CharCount())
	return workflows.ExtractOutput{
		DocumentID: doc.ID,
		Characters: doc.CharCount(),
		Method:     doc.Report.Method,
		LowText:    doc.Report.LowText,
		Warnings:   doc.Report.Warnings,
	}, nil
}

func (a *Activities) extract(ctx context.Context, input workflows.FileInput) (*document.Document, error) {
	switch {
	case input.DocumentID != "":
		return a.processor.Extract(ctx, input.DocumentID)
	case input.Path != "":
		content, err := os.ReadFile(input.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, input.Path)
		}
		if err != nil {
			return nil, err
		}
		name := input.Filename
		if name == "" {
			name = filepath.Base(input.Path)
		}
		return a.processor.Upload(ctx, name, content)
	}
	return nil, &extractor.ProcessingError{Message: fmt.Sprintf("batch file %q has neither a document ID nor a path", input.Filename)}
}

// GenerateMetadataActivity asks the model for metadata about a stored
// document.
func (a *Activities) GenerateMetadataActivity(ctx context.Context, documentID string) (workflows.GenerateOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Generating metadata", "documentID", documentID)

	doc, err := a.processor.Generate(ctx, documentID)
	if err != nil {
		return workflows.GenerateOutput{}, classify(err)
	}

	logger.Info("Metadata generated", "documentID", documentID, "fields", doc.Generated.Metadata.Len())
	return workflows.GenerateOutput{
		Model:    doc.Generated.Model,
		Metadata: doc.Generated.Metadata,
	}, nil
}

// ArchiveMetadataActivity commits a generated result to the archive.
func (a *Activities) ArchiveMetadataActivity(ctx context.Context, documentID string) error {
	if a.archive == nil {
		activity.GetLogger(ctx).Info("Archive disabled, skipping", "documentID", documentID)
		return nil
	}

	doc, err := a.processor.Get(ctx, documentID)
	if err != nil {
		return classify(err)
	}
	if err := a.archive.Archive(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive metadata: %w", err)
	}
	return nil
}

// classify marks errors that a retry cannot fix as non-retryable.
func classify(err error) error {
	var (
		procErr  *extractor.ProcessingError
		parseErr *metadata.ParseError
		apiErr   *llm.APIError
	)

	switch {
	case errors.As(err, &procErr),
		errors.Is(err, processing.ErrUnsupportedType),
		errors.Is(err, processing.ErrEmptyFile),
		errors.Is(err, processing.ErrFileTooLarge):
		return temporal.NewNonRetryableApplicationError(err.Error(), workflows.ProcessingErrorType, err)
	case errors.As(err, &parseErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), workflows.ParseErrorType, err)
	case errors.Is(err, processing.ErrInsufficientText):
		return temporal.NewNonRetryableApplicationError(err.Error(), workflows.InsufficientTextErrorType, err)
	case errors.Is(err, llm.ErrMissingAPIKey),
		errors.As(err, &apiErr) && !apiErr.Retryable():
		return temporal.NewNonRetryableApplicationError(err.Error(), workflows.ProviderErrorType, err)
	case errors.Is(err, storage.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), workflows.NotFoundErrorType, err)
	}
	return err
}
