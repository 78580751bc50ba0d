package protocol

import "errors"

// AckOK is the wire form of a successful acknowledgement
const AckOK = "ACK"

// Ack is the reply of a controller to exactly one command, or to its
// startup self-test.
type Ack struct {
	Component string
	Operation string
	Err       error // nil on success
}

// Success builds a success acknowledgement
func Success(component, operation string) Ack {
	return Ack{Component: component, Operation: operation}
}

// Failure builds a failure acknowledgement from an internal fault
func Failure(component, operation string, err error) Ack {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return Ack{Component: component, Operation: operation, Err: err}
}

// OK reports whether the command completed
func (a Ack) OK() bool {
	return a.Err == nil
}

// String renders "ACK" or the failure text prefixed with the component
func (a Ack) String() string {
	if a.OK() {
		return AckOK
	}
	return a.AsError().Error()
}

// AsError converts a failure into an OperationError, nil on success
func (a Ack) AsError() *OperationError {
	if a.OK() {
		return nil
	}

	var opErr *OperationError
	if errors.As(a.Err, &opErr) && opErr.Component == a.Component {
		return opErr
	}

	msg := a.Err.Error()
	var commErr *CommunicationError
	if errors.As(a.Err, &commErr) {
		msg = commErr.Message + " - MSG: " + commErr.Input
	}

	return &OperationError{
		Component: a.Component,
		Operation: a.Operation,
		Message:   msg,
		Err:       a.Err,
	}
}
