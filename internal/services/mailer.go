package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

const verificationSubject = "Verification Code"

// EmailSender delivers a rendered email. A non-nil error means delivery failed.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

var verificationTmpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html lang="en" dir="ltr">
<head><title>Verification Code</title></head>
<body>
  <h2>Hello {{.Username}}</h2>
  <p>Thank you for registering with us. Please enter the following code to verify your account: <strong>{{.Code}}</strong></p>
  <p><a href="{{.VerifyURL}}">Verify Here</a></p>
  <p>This code expires in {{.ValidFor}}.</p>
</body>
</html>`))

// RenderVerificationEmail renders the body carrying the recipient name and code.
func RenderVerificationEmail(username, code, frontendURL, validFor string) (string, error) {
	var buf bytes.Buffer
	err := verificationTmpl.Execute(&buf, struct {
		Username  string
		Code      string
		VerifyURL string
		ValidFor  string
	}{
		Username:  username,
		Code:      code,
		VerifyURL: frontendURL + "/verify/" + url.PathEscape(username),
		ValidFor:  validFor,
	})
	if err != nil {
		return "", fmt.Errorf("render verification email: %w", err)
	}
	return buf.String(), nil
}

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (s *ResendSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	logger.Log(ctx).Debug(ctx, "email sent", zap.String("provider_id", sent.Id))
	return nil
}

// LogSender writes emails to the log instead of sending them. Development only.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	logger.Log(ctx).Info(ctx, "email not sent: no provider configured",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", htmlBody),
	)
	return nil
}
