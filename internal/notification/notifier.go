package notification

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailNotifier sends alert digests over SMTP.
type EmailNotifier struct {
	cfg    config.SMTPConfig
	auth   smtp.Auth
	sendFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a new EmailNotifier. It fails when no host or
// recipient is configured.
func NewEmailNotifier(cfg config.SMTPConfig) (model.Notifier, error) {
	if cfg.Host == "" || cfg.To == "" {
		return nil, fmt.Errorf("smtp host and recipients are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		// PlainAuth will not send credentials until the server identifies itself as a trusted one.
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &EmailNotifier{cfg: cfg, auth: auth, sendFn: smtp.SendMail}, nil
}

// Recipients returns the trimmed, non-empty addresses of the To field.
func Recipients(to string) []string {
	var out []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// BuildMessage assembles the HTML mail sent for a digest.
func BuildMessage(from, to, subject, body string) []byte {
	return []byte("To: " + to + "\r\n" +
		"From: " + from + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		body)
}

// Send sends an email to the configured recipients.
func (n *EmailNotifier) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	msg := BuildMessage(n.cfg.From, n.cfg.To, subject, body)

	if err := n.sendFn(addr, n.auth, n.cfg.From, Recipients(n.cfg.To), msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
