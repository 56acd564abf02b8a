package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/internal/models"
	"github.com/AnshRaj112/mystery-message-backend/internal/services"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
	"github.com/AnshRaj112/mystery-message-backend/pkg/utils"
)

const maxBodyBytes = 16 << 10

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success             bool                   `json:"success"`
	Message             string                 `json:"message"`
	IsAcceptingMessages *bool                  `json:"isAcceptingMessages,omitempty"`
	Messages            []models.Message       `json:"messages,omitempty"`
	Token               string                 `json:"token,omitempty"`
	User                *UserResponse          `json:"user,omitempty"`
	Username            string                 `json:"username,omitempty"`
	Errors              utils.ValidationErrors `json:"errors,omitempty"`
}

// UserResponse is the public view of the signed-in user.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func writeJSON(w http.ResponseWriter, status int, body APIResponse) {
	writeAny(w, status, body)
}

func writeAny(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIResponse{Success: false, Message: message})
}

func writeValidation(w http.ResponseWriter, errs utils.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, APIResponse{
		Success: false,
		Message: errs[0].Message,
		Errors:  errs,
	})
}

// decodeJSON reads a size-limited JSON body into dst. It writes the 400 itself
// and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "Request body is required")
		default:
			writeError(w, http.StatusBadRequest, "Invalid request body")
		}
		return false
	}
	return true
}

// errorStatus maps an account workflow error to its status and client message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUsernameTaken):
		return http.StatusConflict, "Username already exists"
	case errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict, "Email already exists"
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, services.ErrRecipientNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, services.ErrCodeExpired):
		return http.StatusBadRequest, "Code has expired, please sign up again to get a new code"
	case errors.Is(err, services.ErrCodeMismatch):
		return http.StatusBadRequest, "Invalid code"
	case errors.Is(err, services.ErrAlreadyVerified):
		return http.StatusConflict, "Account is already verified"
	case errors.Is(err, services.ErrNotVerified):
		return http.StatusForbidden, "Please verify your account before signing in"
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect username or password"
	case errors.Is(err, services.ErrNotAccepting):
		return http.StatusForbidden, "User is not accepting messages"
	case errors.Is(err, services.ErrInvalidMessage):
		return http.StatusBadRequest, "Message must be between 1 and 300 characters"
	case errors.Is(err, services.ErrDeliveryFailed):
		return http.StatusInternalServerError, "Error sending verification email"
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		ctx := r.Context()
		logger.Log(ctx).Error(ctx, "request failed", zap.Error(err))
	}
	writeError(w, status, message)
}
