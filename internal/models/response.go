package models

// APIStatus enumerates the status values used in JSON API responses.
type APIStatus string

const (
	StatusOK    APIStatus = "ok"
	StatusError APIStatus = "error"
)

// APIResponse is the envelope for every JSON response the HTTP shell emits.
type APIResponse struct {
	Status    APIStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	Delivered *bool     `json:"delivered,omitempty"`
}

// Success returns an ok response with no message.
func Success() APIResponse {
	return APIResponse{Status: StatusOK}
}

// SuccessWithDelivery returns an ok response carrying the delivery outcome of
// a processed webhook turn.
func SuccessWithDelivery(delivered bool) APIResponse {
	return APIResponse{Status: StatusOK, Delivered: &delivered}
}

// Error returns an error response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
