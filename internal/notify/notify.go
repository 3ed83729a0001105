// Package notify tells students that the verdict on a submission changed.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shrimpsizemoose/trekker/logger"
)

// Message carries an HTML body; senders decide how to render it.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender only logs messages. Used in dev mode and when no SMTP relay is
// configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	body, err := PlainText(msg.Body)
	if err != nil {
		body = msg.Body
	}
	logger.Info.Printf("Notification to %s: %s\n%s", msg.To, msg.Subject, body)
	return nil
}

// PlainText flattens rich-text feedback: line breaks become newlines and
// markup is dropped.
func PlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse message body: %w", err)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}
