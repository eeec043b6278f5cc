package storage

import (
	"fmt"

	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/pkg/failure"
)

type StorageErrorCause string

const (
	ErrCauseNotFound      StorageErrorCause = "not found"
	ErrCauseWriteFailure  StorageErrorCause = "write failure"
	ErrCauseDiskFull      StorageErrorCause = "disk full"
	ErrCausePathError     StorageErrorCause = "path error"
	ErrCauseEncodeFailure StorageErrorCause = "encode failure"
)

// StorageError is the component's single error type, per the component
// design's collapse of per-error-code exception hierarchies into one
// tagged value.
type StorageError struct {
	Message   string
	Retryable bool
	Cause     StorageErrorCause
	Path      string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %s", e.Cause, e.Message)
}

func (e *StorageError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StorageError) IsRetryable() bool {
	return e.Retryable
}

// mapStorageErrorToMetadataCause maps storage-local error semantics to the
// canonical metadata.ErrorCause table. Observational only.
func mapStorageErrorToMetadataCause(err *StorageError) metadata.ErrorCause {
	if err == nil {
		return metadata.CauseUnknown
	}
	switch err.Cause {
	case ErrCauseWriteFailure, ErrCauseDiskFull, ErrCausePathError, ErrCauseEncodeFailure:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
