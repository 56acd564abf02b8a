package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 10
	MinPasswordLength = 8
	VerifyCodeLength  = 6
	MaxMessageLength  = 300
)

var (
	usernameRegex   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex      = regexp.MustCompile(`^\w+([\.+-]?\w+)*@\w+([\.-]?\w+)*(\.\w{2,})+$`)
	verifyCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidationError is a single field-level problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors is the result of validating a whole request. Empty means ok.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, ", ")
}

// ValidateUsername: 3-10 characters, letters, numbers and underscores.
func ValidateUsername(username string) *ValidationError {
	username = strings.TrimSpace(username)

	switch {
	case len(username) < MinUsernameLength:
		return &ValidationError{Field: "username", Message: "Username must be at least 3 characters long"}
	case len(username) > MaxUsernameLength:
		return &ValidationError{Field: "username", Message: "Username must be at most 10 characters long"}
	case !usernameRegex.MatchString(username):
		return &ValidationError{Field: "username", Message: "Username must only contain letters, numbers, and underscores"}
	}
	return nil
}

func ValidateEmail(email string) *ValidationError {
	if !emailRegex.MatchString(strings.TrimSpace(email)) {
		return &ValidationError{Field: "email", Message: "Invalid email address"}
	}
	return nil
}

func ValidatePassword(password string) *ValidationError {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters long"}
	}
	return nil
}

func ValidateVerifyCode(code string) *ValidationError {
	if !verifyCodeRegex.MatchString(strings.TrimSpace(code)) {
		return &ValidationError{Field: "code", Message: "Verification code must be 6 digits"}
	}
	return nil
}

func ValidateMessageContent(content string) *ValidationError {
	content = strings.TrimSpace(content)
	if content == "" {
		return &ValidationError{Field: "content", Message: "Message content is required"}
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return &ValidationError{Field: "content", Message: "Message must be at most 300 characters"}
	}
	return nil
}

// ValidateSignUp collects every field problem of a sign-up request.
func ValidateSignUp(username, email, password string) ValidationErrors {
	var errs ValidationErrors
	for _, e := range []*ValidationError{
		ValidateUsername(username),
		ValidateEmail(email),
		ValidatePassword(password),
	} {
		if e != nil {
			errs = append(errs, *e)
		}
	}
	return errs
}

// NormalizeUsername converts username to lowercase for storage and lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
