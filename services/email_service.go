package services

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer dispatches the reset token to the user. Fire-and-forget from
// the reset flow's perspective; implementations own their retry policy.
type Mailer interface {
	SendPasswordResetEmail(toEmail, resetToken string, expiresInMinutes int) error
}

// SMTPConfig holds mail server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

// EmailService sends transactional mail via SMTP
type EmailService struct {
	config SMTPConfig
}

// NewEmailService creates a new email service instance
func NewEmailService(config SMTPConfig) *EmailService {
	if config.Port == 0 {
		config.Port = 587
	}
	return &EmailService{config: config}
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.config.Username != "" && e.config.Password != ""
}

// SendPasswordResetEmail sends a password reset email to the user
func (e *EmailService) SendPasswordResetEmail(toEmail, resetToken string, expiresInMinutes int) error {
	if !e.IsConfigured() {
		// Dev fallback: surface the token in the process log instead.
		log.Printf("SMTP not configured. Reset token for %s: %s (expires in %d minutes)", toEmail, resetToken, expiresInMinutes)
		return fmt.Errorf("SMTP not configured")
	}

	resetLink := fmt.Sprintf("%s/redefinir-senha?token=%s", e.config.AppURL, resetToken)

	subject := "Redefinição de senha"
	body := fmt.Sprintf(`<html><body>
<p>Recebemos uma solicitação de redefinição de senha para sua conta.</p>
<p><a href="%s">Redefinir senha</a></p>
<p>O link expira em %d minutos. Se você não solicitou a redefinição, ignore este e-mail.</p>
</body></html>`, resetLink, expiresInMinutes)

	return e.sendEmail(toEmail, subject, body)
}

// sendEmail delivers an HTML email over SMTP with STARTTLS
func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)

	headers := []string{
		fmt.Sprintf("From: %s", e.config.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: e.config.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	authMech := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	if err := client.Auth(authMech); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}

	if err := client.Mail(e.config.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}
