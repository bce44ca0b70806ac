package processing

import "errors"

var (
	// ErrUnsupportedType is returned for file extensions without an extractor.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrFileTooLarge is returned when an upload exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("file is empty")
	// ErrInsufficientText is returned by Generate when too little text was
	// extracted to ask the model about.
	ErrInsufficientText = errors.New("insufficient text content for metadata generation")
	// ErrNoMetadata is returned by Export before metadata was generated.
	ErrNoMetadata = errors.New("no metadata has been generated for this document")
)
