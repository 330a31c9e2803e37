package models

import "fmt"

// StoreError reports that the persistence backend was unavailable for a
// conversation state operation. The store layer degrades to the in-memory
// view when this happens; the error exists for logging and health checks.
type StoreError struct {
	Op    string // "load", "save", "delete"
	Phone string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s for %s: %v", e.Op, e.Phone, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RetrievalError reports that the context/embedding pipeline failed after
// retries. Callers proceed with an empty context.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("context retrieval for %q: %v", e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError reports that the model call failed after exhausting the
// retry budget. Callers fall back to a generic reply.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("response generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// DeliveryError reports that the outbound send failed after exhausting the
// retry budget. The turn is still considered processed; the gateway must not
// re-deliver the inbound event.
type DeliveryError struct {
	Phone    string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed after %d attempts: %v", e.Phone, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
