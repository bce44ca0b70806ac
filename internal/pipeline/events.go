package pipeline

import (
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/google/uuid"
)

// EventType represents the type of document event
type EventType string

const (
	EventDocumentUploaded  EventType = "document.uploaded"
	EventTextExtracted     EventType = "text.extracted"
	EventMetadataGenerated EventType = "metadata.generated"
	EventProcessingFailed  EventType = "processing.failed"
	EventDocumentDeleted   EventType = "document.deleted"
)

// AllEventTypes lists every event the processor emits.
var AllEventTypes = []EventType{
	EventDocumentUploaded,
	EventTextExtracted,
	EventMetadataGenerated,
	EventProcessingFailed,
	EventDocumentDeleted,
}

// DocumentEvent represents an event in the document processing pipeline
type DocumentEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Document  *document.Document     `json:"document,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// NewDocumentEvent creates a new document event carrying a shallow copy of
// doc, so later changes to the stored document do not leak into handlers.
func NewDocumentEvent(eventType EventType, doc *document.Document) *DocumentEvent {
	var snapshot *document.Document
	if doc != nil {
		cp := *doc
		snapshot = &cp
	}
	return &DocumentEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Document:  snapshot,
		Metadata:  make(map[string]interface{}),
	}
}

// NewFailureEvent records a failed processing step.
func NewFailureEvent(doc *document.Document, stage string, err error) *DocumentEvent {
	event := NewDocumentEvent(EventProcessingFailed, doc)
	event.Metadata["stage"] = stage
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return "evt_" + uuid.New().String()
}
