package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/internal/models"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
	"github.com/AnshRaj112/mystery-message-backend/pkg/utils"
)

const (
	methodRegister        = "Register"
	methodVerifyCode      = "VerifyCode"
	methodSignIn          = "SignIn"
	methodSendMessage     = "SendMessage"
	methodSetAccepting    = "SetAcceptingMessages"
	methodListMessages    = "ListMessages"
	methodCheckUsername   = "CheckUsername"
	methodGetAcceptStatus = "AcceptingMessages"

	dummyPassword = "not-a-real-password"
)

// UserStore is the identity store the account workflows run against.
// Lookups report models.ErrUserNotFound distinctly from infrastructure errors.
type UserStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindPendingByCode(ctx context.Context, username, code string) (*models.User, error)
	FindVerifiedByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	Insert(ctx context.Context, u *models.User) error
	UpdatePending(ctx context.Context, id primitive.ObjectID, upd models.PendingUpdate) error
	MarkVerified(ctx context.Context, id primitive.ObjectID, code string, now time.Time) (bool, error)
	AppendMessage(ctx context.Context, username string, msg models.Message) (primitive.ObjectID, error)
	SetAcceptingMessages(ctx context.Context, id primitive.ObjectID, accept bool) (bool, error)
	ListMessages(ctx context.Context, id primitive.ObjectID) ([]models.Message, error)
}

// PasswordHasher must be slow and salted.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// MessagePublisher is notified after a message has been persisted.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, userID string, msg models.Message) error
}

// Identity is the authenticated caller, as issued at sign-in and carried by the session.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// AccountConfig holds the collaborators of AccountService. Publisher and Now are optional.
type AccountConfig struct {
	Store       UserStore
	Mailer      EmailSender
	Hasher      PasswordHasher
	Publisher   MessagePublisher
	CodeTTL     time.Duration
	FrontendURL string
	Now         func() time.Time
}

// AccountService implements registration, verification, sign-in, message intake
// and the accept-messages preference.
type AccountService struct {
	store       UserStore
	mailer      EmailSender
	hasher      PasswordHasher
	publisher   MessagePublisher
	codeTTL     time.Duration
	frontendURL string
	now         func() time.Time
	dummyHash   string
}

func NewAccountService(cfg AccountConfig) *AccountService {
	s := &AccountService{
		store:       cfg.Store,
		mailer:      cfg.Mailer,
		hasher:      cfg.Hasher,
		publisher:   cfg.Publisher,
		codeTTL:     cfg.CodeTTL,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		now:         cfg.Now,
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	// Verified against on unknown identifiers so sign-in timing does not reveal accounts.
	if h, err := s.hasher.Hash(dummyPassword); err == nil {
		s.dummyHash = h
	}
	return s
}

// RegisterInput is a sign-up request that already passed utils.ValidateSignUp.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a pending user, or resumes the pending registration that owns
// the email, and mails a fresh verification code. On ErrDeliveryFailed the record
// stays persisted; registering again with the same email issues a new code.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) error {
	username := utils.NormalizeUsername(in.Username)
	email := utils.NormalizeEmail(in.Email)
	log := logger.Log(ctx).With(zap.String("method", methodRegister), zap.String("username", username))

	if _, err := s.store.FindVerifiedByUsername(ctx, username); err == nil {
		log.Debug(ctx, "username held by a verified user")
		return ErrUsernameTaken
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return s.unavailable(ctx, log, "checking username", err)
	}

	existing, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.IsVerified:
		log.Debug(ctx, "email held by a verified user")
		return ErrEmailTaken
	case err != nil && !errors.Is(err, models.ErrUserNotFound):
		return s.unavailable(ctx, log, "checking email", err)
	case err != nil:
		existing = nil
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		log.Error(ctx, "failed to hash password", zap.Error(err))
		return fmt.Errorf("hashing password: %w", err)
	}

	now := s.now()
	code, expiry, err := IssueCode(now, s.codeTTL)
	if err != nil {
		log.Error(ctx, "failed to issue verification code", zap.Error(err))
		return err
	}

	if err := s.persistPending(ctx, existing, username, email, hash, code, expiry, now); err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			log.Debug(ctx, "lost registration race", zap.Error(err))
			return err
		}
		return s.unavailable(ctx, log, "saving pending user", err)
	}

	body, err := RenderVerificationEmail(username, code, s.frontendURL, s.codeTTL.String())
	if err != nil {
		log.Error(ctx, "failed to render verification email", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	if err := s.mailer.Send(ctx, email, verificationSubject, body); err != nil {
		log.Warn(ctx, "verification email not delivered", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	log.Info(ctx, "pending registration saved, verification code sent")
	return nil
}

func (s *AccountService) persistPending(
	ctx context.Context,
	existing *models.User,
	username, email, hash, code string,
	expiry, now time.Time,
) error {
	if existing != nil {
		err := s.store.UpdatePending(ctx, existing.ID, models.PendingUpdate{
			Username:         username,
			PasswordHash:     hash,
			VerifyCode:       code,
			VerifyCodeExpiry: expiry,
		})
		// Verified or removed since the lookup: fall through to insert, which
		// reports the duplicate if the email is now taken.
		if !errors.Is(err, models.ErrUserNotFound) {
			return mapStoreDuplicate(err)
		}
	}

	return mapStoreDuplicate(s.store.Insert(ctx, &models.User{
		CreatedAt:           now.UTC(),
		Username:            username,
		Email:               email,
		PasswordHash:        hash,
		VerifyCode:          code,
		VerifyCodeExpiry:    expiry,
		IsVerified:          false,
		IsAcceptingMessages: true,
		Messages:            []models.Message{},
	}))
}

// VerifyCode checks code against the pending registration of username and, when
// valid, marks that account verified. Several pending registrations may hold the
// same username; the first to verify owns it and the rest get ErrUsernameTaken.
func (s *AccountService) VerifyCode(ctx context.Context, username, code string) error {
	username = utils.NormalizeUsername(username)
	code = strings.TrimSpace(code)
	log := logger.Log(ctx).With(zap.String("method", methodVerifyCode), zap.String("username", username))

	user, err := s.store.FindPendingByCode(ctx, username, code)
	if errors.Is(err, models.ErrUserNotFound) {
		return s.noPendingMatch(ctx, log, username)
	}
	if err != nil {
		return s.unavailable(ctx, log, "finding pending user", err)
	}

	now := s.now()
	if err := codeError(ValidateCode(user.VerifyCode, user.VerifyCodeExpiry, code, now)); err != nil {
		log.Debug(ctx, "verification code rejected", zap.Error(err))
		return err
	}

	ok, err := s.store.MarkVerified(ctx, user.ID, code, now)
	if errors.Is(err, models.ErrDuplicateUsername) {
		log.Info(ctx, "username verified by another registration first")
		return ErrUsernameTaken
	}
	if err != nil {
		return s.unavailable(ctx, log, "marking verified", err)
	}
	if !ok {
		// Lost a race: a double submit already verified, the code expired
		// meanwhile, or a re-registration rotated it.
		current, err := s.store.FindByID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return s.unavailable(ctx, log, "re-reading user", err)
		}
		if !current.IsVerified {
			if err := codeError(ValidateCode(current.VerifyCode, current.VerifyCodeExpiry, code, s.now())); err != nil {
				return err
			}
			return ErrCodeMismatch
		}
	}

	log.Info(ctx, "account verified")
	return nil
}

// noPendingMatch explains why no pending registration of username holds the code.
func (s *AccountService) noPendingMatch(ctx context.Context, log *logger.Logger, username string) error {
	user, err := s.store.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		return ErrUserNotFound
	case err != nil:
		return s.unavailable(ctx, log, "finding user", err)
	case user.IsVerified:
		return ErrAlreadyVerified
	}
	log.Debug(ctx, "verification code mismatch")
	return ErrCodeMismatch
}

func codeError(res CodeResult) error {
	switch res {
	case CodeMismatch:
		return ErrCodeMismatch
	case CodeExpired:
		return ErrCodeExpired
	}
	return nil
}

// SignIn authenticates identifier (username or email) with password.
// Unverified accounts are rejected before the password is looked at.
func (s *AccountService) SignIn(ctx context.Context, identifier, password string) (*Identity, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	log := logger.Log(ctx).With(zap.String("method", methodSignIn))

	user, err := s.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			log.Debug(ctx, "sign-in with unknown identifier")
			return nil, ErrUserNotFound
		}
		return nil, s.unavailable(ctx, log, "finding user", err)
	}

	if !user.IsVerified {
		return nil, ErrNotVerified
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		log.Error(ctx, "stored password hash unreadable", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Debug(ctx, "wrong password", zap.String("user_id", user.ID.Hex()))
		return nil, ErrInvalidCredentials
	}

	log.Info(ctx, "user signed in", zap.String("user_id", user.ID.Hex()))
	return &Identity{UserID: user.ID.Hex(), Username: user.Username}, nil
}

// SendMessage appends an anonymous message to username's inbox.
func (s *AccountService) SendMessage(ctx context.Context, username, content string) (*models.Message, error) {
	username = utils.NormalizeUsername(username)
	log := logger.Log(ctx).With(zap.String("method", methodSendMessage), zap.String("recipient", username))

	if verr := utils.ValidateMessageContent(content); verr != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, verr.Message)
	}

	msg := models.NewMessage(strings.TrimSpace(content), s.now())

	userID, err := s.store.AppendMessage(ctx, username, msg)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUserNotFound):
			return nil, ErrRecipientNotFound
		case errors.Is(err, models.ErrNotAccepting):
			return nil, ErrNotAccepting
		}
		return nil, s.unavailable(ctx, log, "appending message", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMessage(ctx, userID.Hex(), msg); err != nil {
			log.Warn(ctx, "failed to publish inbox event", zap.Error(err))
		}
	}

	log.Debug(ctx, "message delivered")
	return &msg, nil
}

// SetAcceptingMessages stores accept on the caller's own record and returns the persisted value.
func (s *AccountService) SetAcceptingMessages(ctx context.Context, caller Identity, accept bool) (bool, error) {
	log := logger.Log(ctx).With(zap.String("method", methodSetAccepting), zap.String("user_id", caller.UserID))

	id, err := primitive.ObjectIDFromHex(caller.UserID)
	if err != nil {
		return false, ErrUserNotFound
	}

	got, err := s.store.SetAcceptingMessages(ctx, id, accept)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return false, ErrUserNotFound
		}
		return false, s.unavailable(ctx, log, "updating preference", err)
	}

	log.Info(ctx, "accept-messages updated", zap.Bool("accepting", got))
	return got, nil
}

// AcceptingMessages reads the caller's current preference.
func (s *AccountService) AcceptingMessages(ctx context.Context, caller Identity) (bool, error) {
	log := logger.Log(ctx).With(zap.String("method", methodGetAcceptStatus), zap.String("user_id", caller.UserID))

	id, err := primitive.ObjectIDFromHex(caller.UserID)
	if err != nil {
		return false, ErrUserNotFound
	}
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return false, ErrUserNotFound
		}
		return false, s.unavailable(ctx, log, "finding user", err)
	}
	return user.IsAcceptingMessages, nil
}

// ListMessages returns the caller's inbox, newest first.
func (s *AccountService) ListMessages(ctx context.Context, caller Identity) ([]models.Message, error) {
	log := logger.Log(ctx).With(zap.String("method", methodListMessages), zap.String("user_id", caller.UserID))

	id, err := primitive.ObjectIDFromHex(caller.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.unavailable(ctx, log, "listing messages", err)
	}
	return msgs, nil
}

// CheckUsername reports whether username can still be claimed. Only verified
// users hold a name.
func (s *AccountService) CheckUsername(ctx context.Context, username string) (bool, error) {
	log := logger.Log(ctx).With(zap.String("method", methodCheckUsername))

	_, err := s.store.FindVerifiedByUsername(ctx, utils.NormalizeUsername(username))
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, models.ErrUserNotFound):
		return true, nil
	default:
		return false, s.unavailable(ctx, log, "checking username", err)
	}
}

func (s *AccountService) unavailable(ctx context.Context, log *logger.Logger, action string, err error) error {
	log.Error(ctx, "identity store error", zap.String("action", action), zap.Error(err))
	return fmt.Errorf("%s: %w: %w", action, ErrStoreUnavailable, err)
}

func mapStoreDuplicate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrDuplicateUsername):
		return ErrUsernameTaken
	case errors.Is(err, models.ErrDuplicateEmail):
		return ErrEmailTaken
	}
	return err
}
