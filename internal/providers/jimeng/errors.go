package jimeng

import (
	"fmt"

	"visualgen/internal/providers/volcengine"
)

// ConfigurationError is re-exported so callers of this package can match it
// without importing the signer.
type ConfigurationError = volcengine.ConfigurationError

// SubmissionError is a well-formed rejection from the provider or proxy.
// Message carries the provider text verbatim.
type SubmissionError struct {
	Kind       Kind
	HTTPStatus int
	Code       string
	Message    string
}

func (e *SubmissionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("jimeng: %s rejected: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("jimeng: %s rejected: %s", e.Kind, e.Message)
}

// TransportError is a network, timeout or decoding failure before a
// well-formed provider answer was obtained.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jimeng: %s transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PollTransportError marks a failed status query. The job is abandoned.
type PollTransportError struct {
	TaskID  string
	Attempt int
	Err     error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("jimeng: status query %d for task %s failed: %v", e.Attempt, e.TaskID, e.Err)
}

func (e *PollTransportError) Unwrap() error {
	return e.Err
}

// ProviderFailed reports a task the provider declared failed.
type ProviderFailed struct {
	TaskID  string
	Status  string
	Message string
}

func (e *ProviderFailed) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("jimeng: task %s failed: %s", e.TaskID, e.Message)
	}
	return fmt.Sprintf("jimeng: task %s failed with status %q", e.TaskID, e.Status)
}
