package sheetapi

import "fmt"

// TransportError covers network failures, non-2xx statuses and undecodable
// bodies.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a logical failure reported by the endpoint with success=false.
// Message is kept verbatim for display.
type APIError struct {
	Action  string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}
