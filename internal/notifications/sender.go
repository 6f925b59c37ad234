package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/config"
	"github.com/kmt-marshals/backend/internal/models"
)

// ErrRecipientUnreachable is returned when the user has no address or
// token for the requested channel.
var ErrRecipientUnreachable = errors.New("recipient unreachable on channel")

// Sender delivers one notification to an external provider.
type Sender interface {
	Send(ctx context.Context, user *models.User, title, body string) error
}

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	cfg    config.EmailConfig
	logger *zap.Logger
}

// NewEmailSender creates an SMTP email sender.
func NewEmailSender(cfg config.EmailConfig, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailSender{cfg: cfg, logger: logger}
}

// Send delivers a plain-text email to the user.
func (s *EmailSender) Send(_ context.Context, user *models.User, title, body string) error {
	if s.cfg.SMTPHost == "" {
		return errors.New("smtp not configured")
	}
	if user.Email == "" {
		return ErrRecipientUnreachable
	}
	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.FromName, s.cfg.FromAddress, user.Email, title, body)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.FromAddress, []string{user.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// PushSender delivers notifications through the push-messaging provider's
// HTTP API.
type PushSender struct {
	cfg    config.PushConfig
	client *http.Client
	logger *zap.Logger
}

// NewPushSender creates a push sender.
func NewPushSender(cfg config.PushConfig, logger *zap.Logger) *PushSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type pushMessage struct {
	To           string           `json:"to"`
	Notification pushNotification `json:"notification"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send posts the notification to the provider for the user's device token.
func (s *PushSender) Send(ctx context.Context, user *models.User, title, body string) error {
	if s.cfg.ServerKey == "" {
		return errors.New("push provider not configured")
	}
	if user.PushToken == "" {
		return ErrRecipientUnreachable
	}
	payload, err := json.Marshal(pushMessage{
		To:           user.PushToken,
		Notification: pushNotification{Title: title, Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.cfg.ServerKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push provider status: %d", resp.StatusCode)
	}
	return nil
}
