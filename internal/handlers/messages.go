package handlers

import (
	"net/http"

	"github.com/AnshRaj112/mystery-message-backend/internal/middleware"
	"github.com/AnshRaj112/mystery-message-backend/internal/models"
	"github.com/AnshRaj112/mystery-message-backend/pkg/utils"
)

// SendMessageRequest for POST /api/send-message. No authentication.
type SendMessageRequest struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// AcceptMessagesRequest for POST /api/accept-messages
type AcceptMessagesRequest struct {
	AcceptMessages *bool `json:"acceptMessages"`
}

// SendMessage appends an anonymous message to the named user's inbox.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeValidation(w, utils.ValidationErrors{{Field: "username", Message: "Username is required"}})
		return
	}
	if verr := utils.ValidateMessageContent(req.Content); verr != nil {
		writeValidation(w, utils.ValidationErrors{*verr})
		return
	}

	msg, err := h.accounts.SendMessage(r.Context(), req.Username, req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success:  true,
		Message:  "Message sent successfully",
		Messages: []models.Message{*msg},
	})
}

// GetMessages returns the caller's inbox, newest first.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	msgs, err := h.accounts.ListMessages(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeMessages(w, msgs)
}

// writeMessages always emits the messages key, as [] for an empty inbox.
func writeMessages(w http.ResponseWriter, msgs []models.Message) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeAny(w, http.StatusOK, struct {
		Success  bool             `json:"success"`
		Message  string           `json:"message"`
		Messages []models.Message `json:"messages"`
	}{true, "Messages retrieved", msgs})
}

// GetAcceptMessages reports the caller's accept-messages flag.
func (h *Handler) GetAcceptMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	accepting, err := h.accounts.AcceptingMessages(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success:             true,
		Message:             "User found",
		IsAcceptingMessages: &accepting,
	})
}

// UpdateAcceptMessages sets the caller's accept-messages flag.
func (h *Handler) UpdateAcceptMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req AcceptMessagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AcceptMessages == nil {
		writeValidation(w, utils.ValidationErrors{{Field: "acceptMessages", Message: "acceptMessages must be true or false"}})
		return
	}

	accepting, err := h.accounts.SetAcceptingMessages(r.Context(), caller, *req.AcceptMessages)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success:             true,
		Message:             "Message acceptance status updated successfully",
		IsAcceptingMessages: &accepting,
	})
}
