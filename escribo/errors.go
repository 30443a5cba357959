package escribo

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the API answers 404 for a lookup.
	ErrNotFound = errors.New("escribo: resource not found")

	// ErrInvalidCount is returned for batch sizes outside 1..MaxBatchSize.
	ErrInvalidCount = errors.New("escribo: invalid batch count")

	// ErrMissingToken is returned when an admin call has no bearer token.
	ErrMissingToken = errors.New("escribo: missing access token")

	// ErrUnexpectedStatus is returned when a workflow step resolves with a
	// status it cannot proceed from.
	ErrUnexpectedStatus = errors.New("escribo: unexpected response status")
)

// Batch workflow steps
const (
	StepGenerate = "generate"
	StepExport   = "export"
)

// BatchError reports which step of the batch workflow failed.
type BatchError struct {
	Step string
	Err  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s failed: %v", e.Step, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
