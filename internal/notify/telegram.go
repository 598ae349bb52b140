// Package notify delivers run updates to a Telegram chat via the Bot API.
// Delivery failures are logged and swallowed; notification must never block
// or fail a run.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inkwisp/mediadrop/internal/logutil"
	"github.com/inkwisp/mediadrop/internal/publish"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	maxChunk       = 4000
	sendTimeout    = 5 * time.Second
)

// Telegram buffers messages for one run and sends urgent ones immediately.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	buffer   []string
}

var _ publish.Notifier = (*Telegram)(nil)

// NewTelegram registers bot token and chat identifier.
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

// Notify records the message in the run buffer and, when urgent, sends it to
// the chat right away.
func (t *Telegram) Notify(ctx context.Context, msg string, urgent bool) {
	t.buffer = append(t.buffer, msg)
	logutil.Infof("%s", msg)

	if urgent && t.configured() {
		if err := t.send(ctx, msg); err != nil {
			logutil.Errorf("telegram send failed: %v", err)
		}
	}
}

// Flush sends the buffered messages as one chunked summary and clears the
// buffer.
func (t *Telegram) Flush(ctx context.Context) {
	if len(t.buffer) == 0 {
		return
	}
	summary := strings.Join(t.buffer, "\n")
	t.buffer = nil

	if !t.configured() {
		return
	}
	for start := 0; start < len(summary); start += maxChunk {
		end := start + maxChunk
		if end > len(summary) {
			end = len(summary)
		}
		if err := t.send(ctx, summary[start:end]); err != nil {
			logutil.Errorf("telegram summary send failed: %v", err)
		}
	}
}

func (t *Telegram) configured() bool {
	return t.botToken != "" && t.chatID != ""
}

func (t *Telegram) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}
