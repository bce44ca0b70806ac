package pipeline

import (
	"context"
	"fmt"

	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/rs/zerolog/log"
)

// Archiver persists a document with generated metadata.
type Archiver interface {
	Archive(ctx context.Context, doc *document.Document) error
}

// SubscribeArchiver commits every successfully generated result to archiver.
func SubscribeArchiver(bus *EventBus, archiver Archiver) (*Subscription, error) {
	return bus.Subscribe([]EventType{EventMetadataGenerated}, func(ctx context.Context, event *DocumentEvent) error {
		if event.Document == nil || !event.Document.Generated.Succeeded() {
			return nil
		}
		if err := archiver.Archive(ctx, event.Document); err != nil {
			return fmt.Errorf("archive document %s: %w", event.Document.ID, err)
		}
		return nil
	}, 100)
}

// SubscribeLogger logs every pipeline event.
func SubscribeLogger(bus *EventBus) (*Subscription, error) {
	return bus.Subscribe(AllEventTypes, func(ctx context.Context, event *DocumentEvent) error {
		entry := log.Info()
		if event.Type == EventProcessingFailed {
			entry = log.Warn().Str("error", event.Error)
		}
		if event.Document != nil {
			entry = entry.
				Str("document_id", event.Document.ID).
				Str("filename", event.Document.Source.Filename)
		}
		entry.
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Fields(event.Metadata).
			Msg("Pipeline event")
		return nil
	}, 1000)
}
