package model

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges a write.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Error wraps a message in an ErrorResponse.
func Error(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// Success returns a SuccessResponse with an optional message.
func Success(msg string) SuccessResponse {
	return SuccessResponse{Success: true, Message: msg}
}

// StatusRes is the health payload.
type StatusRes struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
	Push        string `json:"push"`
}
