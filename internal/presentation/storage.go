package presentation

import (
	"context"

	"github.com/Caia-Tech/smartmeta/pkg/document"
)

// Documents is the part of the processor the web UI drives.
type Documents interface {
	Upload(ctx context.Context, filename string, content []byte) (*document.Document, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	Generate(ctx context.Context, id string) (*document.Document, error)
	Export(ctx context.Context, id string) (string, []byte, error)
	Accepts(filename string) bool
}
