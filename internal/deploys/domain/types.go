// Package domain contains the business logic for deploy history.
package domain

import (
	"time"
)

// Status values a recorded deploy can take.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusTimeout = "timeout"
)

// Deploy is a submitted deploy and the last known outcome of its execution.
type Deploy struct {
	ID           string    `json:"id"`
	Hash         string    `json:"deployHash"`
	Operation    string    `json:"operation"`
	EntryPoint   string    `json:"entryPoint"`
	Target       string    `json:"target,omitempty"`
	Account      string    `json:"account"`
	AccountHash  string    `json:"accountHash,omitempty"`
	ChainName    string    `json:"chainName"`
	PaymentMotes string    `json:"paymentMotes,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	BlockHash    string    `json:"blockHash,omitempty"`
	Cost         string    `json:"cost,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RecordRequest is the request to record a submitted deploy.
type RecordRequest struct {
	Hash         string
	Operation    string
	EntryPoint   string
	Target       string
	Account      string
	ChainName    string
	PaymentMotes string
	SubmittedAt  time.Time
}

// StatusUpdate is an execution outcome for a recorded deploy.
type StatusUpdate struct {
	Status       string
	ErrorMessage string
	BlockHash    string
	Cost         string
}

// ListFilter contains filter options for listing deploys.
type ListFilter struct {
	Account   string
	Operation string
	Status    string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deploys    []Deploy
	HasMore    bool
	NextCursor string
}
