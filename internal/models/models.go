// Package models defines the core data structures for Nudge.
//
// It includes the chat wire contract, conversation turns, and the standard
// API response envelope, which are shared across modules.
package models

import (
	"errors"
	"strings"
)

// SessionState identifies where a chat session is in the consent cycle.
type SessionState string

const (
	// SessionStateIdle means the session is in normal conversation.
	SessionStateIdle SessionState = "IDLE"
	// SessionStateAwaitingConsent means the previous turn asked the customer
	// for permission to run an external lookup and the next message answers it.
	SessionStateAwaitingConsent SessionState = "AWAITING_CONSENT"
)

// Validation constants for input validation
const (
	// MaxChatMessageLength defines the maximum allowed length for a chat message
	MaxChatMessageLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrEmptySessionID = errors.New("session ID cannot be empty")
)

// ChatRequest is the payload of a chat turn submitted over HTTP.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate performs validation on a ChatRequest before any state changes.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxChatMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatResponse is the reply to a chat turn.
type ChatResponse struct {
	Response       string       `json:"response"`
	SessionID      string       `json:"session_id"`
	State          SessionState `json:"state"`
	DiscountCode   string       `json:"discount_code,omitempty"`
	ConsentRequest string       `json:"consent_request,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
