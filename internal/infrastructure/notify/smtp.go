package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/clinicore/ehr-api/internal/core/ports"
)

// SMTPNotifier delivers registration notifications over SMTP with implicit
// TLS (port 465 style). It is deliberately template-dumb: three fixed plain
// messages, one per notification kind.
type SMTPNotifier struct {
	host        string
	port        string
	username    string
	password    string
	from        string
	linkBaseURL string
}

// NewSMTPNotifier builds an SMTPNotifier. linkBaseURL is the public base URL
// embedded in approval emails, e.g. https://portal.example.com.
func NewSMTPNotifier(host, port, username, password, from, linkBaseURL string) *SMTPNotifier {
	return &SMTPNotifier{
		host:        host,
		port:        port,
		username:    username,
		password:    password,
		from:        from,
		linkBaseURL: linkBaseURL,
	}
}

func (s *SMTPNotifier) Send(ctx context.Context, n ports.Notification) error {
	subject, body := s.render(n)
	return s.send(ctx, n.Email, subject, body)
}

func (s *SMTPNotifier) render(n ports.Notification) (subject, body string) {
	switch n.Kind {
	case ports.NotifyVerification:
		return "Verify your registration",
			fmt.Sprintf("Hello %s,\r\n\r\nYour verification code is %s. It expires in 24 hours.\r\n", n.FirstName, n.Code)
	case ports.NotifyApproval:
		return "Your registration was approved",
			fmt.Sprintf("Hello %s,\r\n\r\nYour registration was approved. Set your password within 12 hours:\r\n%s/registration/complete?token=%s\r\n", n.FirstName, s.linkBaseURL, n.Token)
	case ports.NotifyRejection:
		return "Your registration was not approved",
			fmt.Sprintf("Hello %s,\r\n\r\nYour registration was not approved. Reason: %s\r\n", n.FirstName, n.Reason)
	default:
		return "Registration update", fmt.Sprintf("Hello %s,\r\n", n.FirstName)
	}
}

func (s *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", s.from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	addr := s.host + ":" + s.port

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Quit()

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
