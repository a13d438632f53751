// Package mail sends notification emails to private-room requesters who
// are not reachable through the chat surface.
package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

// Message is a plain-text notification email.
type Message struct {
	Subject string
	From    string
	To      []string
	Body    string
}

// Content assembles the raw SMTP payload for the message.
func (m Message) Content() []byte {
	subject := fmt.Sprintf("Subject: %s\n", m.Subject)
	to := fmt.Sprintf("To: %s\n", strings.Join(m.To, ","))
	return []byte(subject + to + "\n" + m.Body)
}

// Sender delivers messages through a single SMTP relay.
type Sender struct {
	host string
	from string
	auth smtp.Auth
}

// NewSender reads SMTP_HOST, SMTP_USERNAME, SMTP_PASSWORD and SMTP_FROM
// from the environment. A Sender without a configured host logs and
// drops messages instead of failing the caller.
func NewSender() *Sender {
	host := os.Getenv("SMTP_HOST")
	username := os.Getenv("SMTP_USERNAME")
	password := os.Getenv("SMTP_PASSWORD")
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = username
	}

	var auth smtp.Auth
	if username != "" {
		authHost := host
		if parts := strings.Split(host, ":"); len(parts) > 1 {
			authHost = parts[0]
		}
		auth = smtp.PlainAuth("", username, password, authHost)
	}

	return &Sender{host: host, from: from, auth: auth}
}

// Send delivers the message, filling in the configured From address when
// the message carries none.
func (s *Sender) Send(m Message) error {
	if s.host == "" {
		log.Printf("[MAIL] SMTP not configured, dropping message to %v: %s", m.To, m.Subject)
		return nil
	}
	if m.From == "" {
		m.From = s.from
	}
	if err := smtp.SendMail(s.host, s.auth, m.From, m.To, m.Content()); err != nil {
		return fmt.Errorf("sending mail to %v: %w", m.To, err)
	}
	log.Printf("[MAIL] Sent %q to %v", m.Subject, m.To)
	return nil
}
