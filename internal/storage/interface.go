package storage

import (
	"context"
	"errors"

	"github.com/Caia-Tech/smartmeta/pkg/document"
)

// ErrNotFound is returned when a document does not exist or has expired.
var ErrNotFound = errors.New("document not found")

// Store keeps uploaded documents between upload and metadata generation.
type Store interface {
	Put(ctx context.Context, doc *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	Delete(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

// StorageMetrics provides telemetry for storage operations
type StorageMetrics struct {
	OperationType string
	Duration      int64 // nanoseconds
	Success       bool
	Backend       string
	Error         error
}

// MetricsCollector receives storage operation metrics
type MetricsCollector interface {
	RecordMetric(metric StorageMetrics)
}
