// Package transport provides HTTP request/response types for the deploy history.
package transport

import "github.com/ectoplasm/dexclient/internal/deploys/domain"

// DeployListResponse is the response for listing deploys.
type DeployListResponse struct {
	Data       []domain.Deploy `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
