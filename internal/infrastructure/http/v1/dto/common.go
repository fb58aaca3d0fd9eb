// Package dto defines the HTTP request/response shapes for API v1.
package dto

// IDResponse returns a created entity's id.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a generic success acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
