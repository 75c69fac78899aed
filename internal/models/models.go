// Package models defines shared request and response structures.
package models

import "encoding/json"

// ErrorResponse is the JSON error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ChatRequest is the body of a chat request. Messages are passed through to
// the upstream chat service untouched.
type ChatRequest struct {
	ID       string          `json:"id"`
	Messages json.RawMessage `json:"messages"`
}

// Model describes a selectable chat model, as stored in the selectedModel
// cookie by the UI.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	ProviderID  string `json:"providerId"`
	Enabled     bool   `json:"enabled"`
	RequireAuth bool   `json:"auth"`
}

// RateLimitError is the 429 response body. ResetTime is ISO-8601 so clients
// can schedule retries.
type RateLimitError struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	ResetTime      string `json:"resetTime"`
	Remaining      int    `json:"remaining"`
	QuotaRemaining *int   `json:"quotaRemaining,omitempty"`
}
