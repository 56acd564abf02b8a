package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

// Health answers 200 when every backing service responds, 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			logger.Log(ctx).Warn(ctx, "health check failed", zap.String("dependency", name), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, name+" unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok"})
}
