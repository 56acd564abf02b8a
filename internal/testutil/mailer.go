package testutil

import (
	"context"
	"regexp"
	"sync"
)

var codePattern = regexp.MustCompile(`<strong>(\d{6})</strong>`)

// Email is one captured outgoing message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer records sent emails instead of delivering them.
type Mailer struct {
	mu   sync.Mutex
	sent []Email
	fail error
}

func NewMailer() *Mailer {
	return &Mailer{}
}

// FailWith makes Send return err until called again with nil.
func (m *Mailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Mailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, Email{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *Mailer) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

// LastCode extracts the verification code from the latest email sent to addr.
func (m *Mailer) LastCode(addr string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To != addr {
			continue
		}
		if match := codePattern.FindStringSubmatch(m.sent[i].Body); match != nil {
			return match[1], true
		}
	}
	return "", false
}
