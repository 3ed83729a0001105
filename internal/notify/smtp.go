package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"time"
)

type SMTPSender struct {
	Addr          string
	From          string
	Username      string
	Password      string
	SubjectPrefix string
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := PlainText(msg.Body)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.Username != "" {
		host, _, err := net.SplitHostPort(s.Addr)
		if err != nil {
			return fmt.Errorf("failed to parse smtp address: %w", err)
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}

	raw := s.compose(msg.To, msg.Subject, body, time.Now())
	if err := smtp.SendMail(s.Addr, auth, s.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) compose(to, subject, body string, now time.Time) []byte {
	if s.SubjectPrefix != "" {
		subject = s.SubjectPrefix + " " + subject
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.Bytes()
}
