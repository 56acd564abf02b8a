// Package testutil holds in-memory stand-ins shared by service and handler tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/mystery-message-backend/internal/models"
)

// ErrInjected is returned by every UserStore method while FailWith is set to it.
var ErrInjected = errors.New("injected store failure")

// UserStore is an in-memory identity store with the same uniqueness rules as
// the Mongo one: email is unique across all records, username across verified ones.
type UserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
	fail  error
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[primitive.ObjectID]*models.User)}
}

// FailWith makes every call return err until called again with nil.
func (s *UserStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Count returns the number of stored records.
func (s *UserStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	return int64(len(s.users)), nil
}

// Get returns a copy of the record with username, including messages.
func (s *UserStore) Get(username string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byUsername(username)
	if u == nil {
		return models.User{}, false
	}
	return clone(u, true), true
}

// GetByEmail returns a copy of the record with email, including messages.
func (s *UserStore) GetByEmail(email string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byEmail(email)
	if u == nil {
		return models.User{}, false
	}
	return clone(u, true), true
}

// Put stores u as-is, assigning an id when missing. For seeding tests.
func (s *UserStore) Put(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Messages == nil {
		u.Messages = []models.Message{}
	}
	c := clone(&u, true)
	s.users[u.ID] = &c
	return clone(&u, true)
}

func (s *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return found(s.users[id])
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return found(s.byUsername(username))
}

func (s *UserStore) FindPendingByCode(_ context.Context, username, code string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	for _, u := range s.users {
		if u.Username == username && !u.IsVerified && u.VerifyCode == code {
			return found(u)
		}
	}
	return nil, models.ErrUserNotFound
}

func (s *UserStore) FindVerifiedByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	u := s.byUsername(username)
	if u == nil || !u.IsVerified {
		return nil, models.ErrUserNotFound
	}
	return found(u)
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return found(s.byEmail(email))
}

func (s *UserStore) FindByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if u := s.byUsername(identifier); u != nil {
		return found(u)
	}
	return found(s.byEmail(identifier))
}

func (s *UserStore) Insert(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if u.IsVerified && s.verifiedOwner(u.Username) != nil {
		return models.ErrDuplicateUsername
	}
	if s.byEmail(u.Email) != nil {
		return models.ErrDuplicateEmail
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Messages == nil {
		u.Messages = []models.Message{}
	}
	u.UpdatedAt = u.CreatedAt
	c := clone(u, true)
	s.users[u.ID] = &c
	return nil
}

func (s *UserStore) UpdatePending(_ context.Context, id primitive.ObjectID, upd models.PendingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	u, ok := s.users[id]
	if !ok || u.IsVerified {
		return models.ErrUserNotFound
	}
	u.Username = upd.Username
	u.PasswordHash = upd.PasswordHash
	u.VerifyCode = upd.VerifyCode
	u.VerifyCodeExpiry = upd.VerifyCodeExpiry
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *UserStore) MarkVerified(_ context.Context, id primitive.ObjectID, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	u, ok := s.users[id]
	if !ok || u.IsVerified || u.VerifyCode != code || now.After(u.VerifyCodeExpiry) {
		return false, nil
	}
	if s.verifiedOwner(u.Username) != nil {
		return false, models.ErrDuplicateUsername
	}
	u.IsVerified = true
	u.VerifyCode = ""
	u.UpdatedAt = now.UTC()
	return true, nil
}

func (s *UserStore) AppendMessage(_ context.Context, username string, msg models.Message) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return primitive.NilObjectID, s.fail
	}
	u := s.verifiedOwner(username)
	if u == nil {
		return primitive.NilObjectID, models.ErrUserNotFound
	}
	if !u.IsAcceptingMessages {
		return primitive.NilObjectID, models.ErrNotAccepting
	}
	u.Messages = append(u.Messages, msg)
	return u.ID, nil
}

func (s *UserStore) SetAcceptingMessages(_ context.Context, id primitive.ObjectID, accept bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	u, ok := s.users[id]
	if !ok {
		return false, models.ErrUserNotFound
	}
	u.IsAcceptingMessages = accept
	return u.IsAcceptingMessages, nil
}

func (s *UserStore) ListMessages(_ context.Context, id primitive.ObjectID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	msgs := make([]models.Message, len(u.Messages))
	copy(msgs, u.Messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// byUsername prefers the verified owner, like the sorted Mongo lookup.
func (s *UserStore) byUsername(username string) *models.User {
	if u := s.verifiedOwner(username); u != nil {
		return u
	}
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (s *UserStore) verifiedOwner(username string) *models.User {
	for _, u := range s.users {
		if u.Username == username && u.IsVerified {
			return u
		}
	}
	return nil
}

func (s *UserStore) byEmail(email string) *models.User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

// found mirrors the Mongo projection: lookups never carry messages.
func found(u *models.User) (*models.User, error) {
	if u == nil {
		return nil, models.ErrUserNotFound
	}
	c := clone(u, false)
	return &c, nil
}

func clone(u *models.User, withMessages bool) models.User {
	c := *u
	c.Messages = nil
	if withMessages {
		c.Messages = append([]models.Message{}, u.Messages...)
	}
	return c
}

// VerifiedUser is a ready-to-Put verified account that accepts messages.
func VerifiedUser(username, email string) models.User {
	return models.User{
		CreatedAt:           time.Now().UTC(),
		Username:            username,
		Email:               email,
		IsVerified:          true,
		IsAcceptingMessages: true,
	}
}
