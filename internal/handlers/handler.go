package handlers

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/AnshRaj112/mystery-message-backend/internal/models"
	"github.com/AnshRaj112/mystery-message-backend/internal/services"
)

// Accounts is the account workflow surface the HTTP layer drives.
type Accounts interface {
	Register(ctx context.Context, in services.RegisterInput) error
	VerifyCode(ctx context.Context, username, code string) error
	SignIn(ctx context.Context, identifier, password string) (*services.Identity, error)
	SendMessage(ctx context.Context, username, content string) (*models.Message, error)
	SetAcceptingMessages(ctx context.Context, caller services.Identity, accept bool) (bool, error)
	AcceptingMessages(ctx context.Context, caller services.Identity) (bool, error)
	ListMessages(ctx context.Context, caller services.Identity) ([]models.Message, error)
	CheckUsername(ctx context.Context, username string) (bool, error)
}

// Sessions issues and revokes session tokens.
type Sessions interface {
	Create(ctx context.Context, id services.Identity) (string, error)
	Invalidate(ctx context.Context, token string) error
}

// InboxSubscriber opens a live feed of a user's new messages.
type InboxSubscriber interface {
	Subscribe(ctx context.Context, userID string) (*services.InboxSubscription, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// Handler serves the HTTP API.
type Handler struct {
	accounts Accounts
	sessions Sessions
	inbox    InboxSubscriber
	checks   map[string]Pinger
	upgrader *websocket.Upgrader
}

func New(accounts Accounts, sessions Sessions, inbox InboxSubscriber, checks map[string]Pinger) *Handler {
	return &Handler{
		accounts: accounts,
		sessions: sessions,
		inbox:    inbox,
		checks:   checks,
		upgrader: newInboxUpgrader(),
	}
}
