package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/internal/middleware"
	"github.com/AnshRaj112/mystery-message-backend/internal/services"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
	"github.com/AnshRaj112/mystery-message-backend/pkg/utils"
)

// SignUpRequest for POST /api/sign-up
type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyCodeRequest for POST /api/verify-code
type VerifyCodeRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// SignInRequest accepts a username or an email as identifier.
type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// SignUp registers a pending user and mails the verification code.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if errs := utils.ValidateSignUp(req.Username, req.Email, req.Password); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	err := h.accounts.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Message: "User registered successfully. Please verify your account.",
	})
}

// VerifyCode confirms the emailed code for a pending user.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var errs utils.ValidationErrors
	if verr := utils.ValidateUsername(req.Username); verr != nil {
		errs = append(errs, *verr)
	}
	if verr := utils.ValidateVerifyCode(req.Code); verr != nil {
		errs = append(errs, *verr)
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	if err := h.accounts.VerifyCode(r.Context(), req.Username, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "User verified successfully"})
}

// SignIn checks credentials and returns a session token.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Identifier and password are required")
		return
	}

	ctx := r.Context()
	id, err := h.accounts.SignIn(ctx, req.Identifier, req.Password)
	if err != nil {
		// Unknown account and wrong password look the same to the caller.
		if errorIsUnknownAccount(err) {
			writeError(w, http.StatusUnauthorized, "Incorrect username or password")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	token, err := h.sessions.Create(ctx, *id)
	if err != nil {
		logger.Log(ctx).Error(ctx, "failed to create session", zap.String("user_id", id.UserID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Signed in successfully",
		Token:   token,
		User:    &UserResponse{ID: id.UserID, Username: id.Username},
	})
}

// SignOut revokes the caller's session token.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessions.Invalidate(ctx, middleware.TokenFrom(ctx)); err != nil {
		logger.Log(ctx).Error(ctx, "failed to invalidate session", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Signed out successfully"})
}

// CheckUsername reports whether ?username= is well-formed and not held by a verified user.
func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if verr := utils.ValidateUsername(username); verr != nil {
		writeValidation(w, utils.ValidationErrors{*verr})
		return
	}

	available, err := h.accounts.CheckUsername(r.Context(), username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !available {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success:  true,
		Message:  "Username available",
		Username: utils.NormalizeUsername(username),
	})
}

func errorIsUnknownAccount(err error) bool {
	return errors.Is(err, services.ErrUserNotFound) || errors.Is(err, services.ErrInvalidCredentials)
}
