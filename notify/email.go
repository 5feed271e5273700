package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"staywatch/models"
)

// SMTPConfig holds mail delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// Configured reports whether the settings are complete enough to send mail.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Sender != ""
}

// EmailNotifier delivers result summaries over SMTP.
type EmailNotifier struct {
	cfg SMTPConfig

	// send is swapped out in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (n *EmailNotifier) SendNotification(ctx context.Context, search *models.Search, result *models.SearchResult) error {
	return n.deliver(search.Notifications.Email, Subject(search, result), Body(search, result))
}

func (n *EmailNotifier) SendError(ctx context.Context, search *models.Search, runErr error) error {
	subject := fmt.Sprintf("StayWatch: %s - execution failed", search.Name)
	body := fmt.Sprintf("Search: %s\nError: %v\n", search.Name, runErr)
	return n.deliver(search.Notifications.Email, subject, body)
}

func (n *EmailNotifier) deliver(to, subject, body string) error {
	if !n.cfg.Configured() {
		return fmt.Errorf("email not configured: set SMTP_HOST/SMTP_SENDER")
	}
	if to == "" {
		return fmt.Errorf("missing email recipient")
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + n.cfg.Sender,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	return n.send(addr, auth, n.cfg.Sender, []string{to}, []byte(msg))
}
