package types

import "github.com/ZhengyiNLP/sister-expense-tracker/models"

// APIResponse represents a standardized API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError represents an error in the API response
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewSuccessResponse creates a new successful API response
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates a new error API response
func NewErrorResponse(code, message string) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	}
}

// NewFieldErrorResponse reports a validation failure on one request field
func NewFieldErrorResponse(field, message string) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &APIError{
			Code:    ErrorCodeValidation,
			Message: message,
			Details: map[string]interface{}{"field": field},
		},
	}
}

// Common error codes
const (
	ErrorCodeValidation     = "VALIDATION_ERROR"
	ErrorCodeUnauthorized   = "UNAUTHORIZED"
	ErrorCodeForbidden      = "FORBIDDEN"
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeConflict       = "CONFLICT"
	ErrorCodeInternal       = "INTERNAL_ERROR"
	ErrorCodeInvalidToken   = "INVALID_TOKEN"
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
)

// Response payloads carried in APIResponse.Data.

type RegisterResponse struct {
	Message string       `json:"message"`
	UserID  int          `json:"userId"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
	User      *models.User `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CreateRecordResponse struct {
	Message string         `json:"message"`
	ID      int            `json:"id"`
	Record  *models.Record `json:"record"`
}

type DeleteAllResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

// HealthResponse is returned without the envelope.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
