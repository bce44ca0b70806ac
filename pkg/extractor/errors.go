package extractor

import "fmt"

// ProcessingError represents a non-retryable extraction error: the input
// itself is the problem, so running the same bytes again will not help.
type ProcessingError struct {
	Message string
}

func (e *ProcessingError) Error() string {
	return e.Message
}

func processingErrorf(format string, args ...any) *ProcessingError {
	return &ProcessingError{Message: fmt.Sprintf(format, args...)}
}

// min returns the minimum of two integers
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
