package errors

import (
	"fmt"
)

// MalformedResourceError is raised when a record server payload is not a
// JSON object or its bundle entries are not a list.
type MalformedResourceError struct {
	*AppError
	Kind string
}

// NewMalformedResourceError creates a new malformed resource error
func NewMalformedResourceError(kind, reason string, cause error) *MalformedResourceError {
	return &MalformedResourceError{
		AppError: &AppError{
			Message: fmt.Sprintf("Malformed %s payload: %s", kind, reason),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Normalizing resource",
				Component: "Resource Normalizer",
				Details: map[string]any{
					"kind": kind,
				},
			},
			ExitCode: ExitRecordError,
		},
		Kind: kind,
	}
}

// RecordServerError is raised when the record server answers with a non-2xx status
type RecordServerError struct {
	*AppError
	StatusCode int
	Body       string
}

// NewRecordServerError creates a new record server error
func NewRecordServerError(path string, statusCode int, body string) *RecordServerError {
	return &RecordServerError{
		AppError: &AppError{
			Message: fmt.Sprintf("Record server returned HTTP %d for %s", statusCode, path),
			Context: &ErrorContext{
				Operation: "Record query",
				Component: "Record Store Client",
				Details: map[string]any{
					"path":   path,
					"status": statusCode,
				},
				Suggestions: []string{
					"Check that the FHIR server URL includes the base path (for example /fhir)",
					"Verify the auth token if the server requires one",
				},
			},
			ExitCode: ExitRecordError,
		},
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewRecordConnectionError is raised when the record server cannot be reached
func NewRecordConnectionError(path string, cause error) *AppError {
	return &AppError{
		Message: fmt.Sprintf("Record server request failed for %s", path),
		Cause:   cause,
		Context: &ErrorContext{
			Operation: "Record query",
			Component: "Record Store Client",
			Details: map[string]any{
				"path": path,
			},
			Recoverable: true,
		},
		ExitCode: ExitRecordError,
	}
}
