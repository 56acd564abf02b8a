package services

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"
)

const (
	// DefaultCodeTTL is how long an issued verification code stays valid.
	DefaultCodeTTL = time.Hour

	codeMin   = 100000
	codeRange = 900000 // codeMin..999999 inclusive
)

// CodeResult is the outcome of comparing a supplied code with the stored one.
type CodeResult int

const (
	CodeValid CodeResult = iota
	CodeExpired
	CodeMismatch
)

func (r CodeResult) String() string {
	switch r {
	case CodeValid:
		return "valid"
	case CodeExpired:
		return "expired"
	default:
		return "mismatch"
	}
}

// IssueCode draws a uniformly distributed 6-digit code and its expiry.
func IssueCode(now time.Time, ttl time.Duration) (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification code: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), now.Add(ttl).UTC(), nil
}

// ValidateCode is Valid iff supplied == stored and now <= expiry, Expired iff the codes
// match but now > expiry, Mismatch otherwise. An empty stored code never matches.
func ValidateCode(storedCode string, storedExpiry time.Time, suppliedCode string, now time.Time) CodeResult {
	if storedCode == "" || subtle.ConstantTimeCompare([]byte(storedCode), []byte(suppliedCode)) != 1 {
		return CodeMismatch
	}
	if now.After(storedExpiry) {
		return CodeExpired
	}
	return CodeValid
}
