package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/edutech/college-api/pkg/config"
)

// Mailer sends outbound notification mail over SMTP.
type Mailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// New constructs a Mailer.
func New(cfg config.SMTPConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, logger: logger}
}

// Configured reports whether an SMTP host has been set up.
func (m *Mailer) Configured() bool {
	return m != nil && m.cfg.Host != ""
}

// Send delivers a single HTML message. When SMTP is not configured the message
// is logged and dropped, which keeps local development working without a relay.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	if !m.Configured() {
		m.logger.Info("smtp not configured, skipping mail",
			zap.String("to", to),
			zap.String("subject", subject),
		)
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", m.cfg.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
