package server

import "cortexre/internal/agent"

// QueryRequest is the POST /api/query body.
type QueryRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
}

// QueryResponse is the pipeline outcome for one query.
type QueryResponse struct {
	ThreadID    string       `json:"thread_id"`
	Answer      string       `json:"answer"`
	Blocked     bool         `json:"blocked"`
	BlockReason string       `json:"block_reason,omitempty"`
	Steps       []agent.Step `json:"intermediate_steps,omitempty"`
}

// PropertiesResponse lists the portfolio's property names, overhead
// excluded.
type PropertiesResponse struct {
	Properties []string `json:"properties"`
}

// HealthResponse reports liveness and dataset size.
type HealthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
}

// ErrorResponse is the machine-readable error shape at this boundary.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
