package protocol

import "fmt"

// InitialisationError reports a component that failed its startup
// self-test. It is fatal to the whole run.
type InitialisationError struct {
	Component string
	Message   string
}

func (e *InitialisationError) Error() string {
	return fmt.Sprintf("%s ERROR: %s", e.Component, e.Message)
}

// OperationError reports an operation that did not complete.
// The physical effect of the command is assumed not to have happened.
type OperationError struct {
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *OperationError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("%s ERROR: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("%s ERROR: %s - OP: %s", e.Component, e.Message, e.Operation)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// CommunicationError reports a malformed message between components
type CommunicationError struct {
	Component string
	Input     string
	Message   string
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s ERROR: %s - MSG: %s", e.Component, e.Message, e.Input)
}

// InputError reports malformed or truncated input
type InputError struct {
	Input   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %q: %s", e.Input, e.Message)
}

// CloseRequest signals a user-requested shutdown. It is not a failure.
type CloseRequest struct {
	Source  string
	Message string
}

func (e *CloseRequest) Error() string {
	return fmt.Sprintf("close signalled from %s - %s", e.Source, e.Message)
}
