package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store-level outcomes, distinct from infrastructure errors.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrNotAccepting      = errors.New("user is not accepting messages")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
)

// User is a single document in the users collection. Messages are embedded.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	Username     string `bson:"username" json:"username"`
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password_hash" json:"-"`

	// Only meaningful while IsVerified is false.
	VerifyCode       string    `bson:"verify_code" json:"-"`
	VerifyCodeExpiry time.Time `bson:"verify_code_expiry" json:"-"`

	IsVerified          bool      `bson:"is_verified" json:"is_verified"`
	IsAcceptingMessages bool      `bson:"is_accepting_messages" json:"is_accepting_messages"`
	Messages            []Message `bson:"messages" json:"-"`
}

// Message is an anonymous note appended to a user's inbox. Never edited.
type Message struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// NewMessage stamps content with a fresh id and createdAt.
func NewMessage(content string, now time.Time) Message {
	return Message{
		ID:        primitive.NewObjectID(),
		Content:   content,
		CreatedAt: now.UTC(),
	}
}

// PendingUpdate is what re-registration overwrites on an unverified record.
type PendingUpdate struct {
	Username         string
	PasswordHash     string
	VerifyCode       string
	VerifyCodeExpiry time.Time
}
