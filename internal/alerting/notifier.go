package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"healthtrend/internal/display"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

// Notification carries the KPI context of an adverse delta. AdditionalMsg is
// appended verbatim to the rendered text.
type Notification struct {
	Kind          metric.Kind
	Day           series.Day
	Current       string
	Target        string
	Delta         display.Delta
	Direction     metric.Direction
	Channels      []string
	SnapshotID    string
	AdditionalMsg string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false: %s", result.Description)
		}
	}

	n.logger.Info().Str("kind", string(note.Kind)).
		Str("day", note.Day.String()).
		Str("delta", note.Delta.Text).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert sent (telegram)")
	return nil
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[healthtrend] %s off target\n", note.Kind))
	builder.WriteString(fmt.Sprintf("Day: %s\n", note.Day))
	builder.WriteString(fmt.Sprintf("Current: %s\n", note.Current))
	builder.WriteString(fmt.Sprintf("Target: %s\n", note.Target))
	builder.WriteString(fmt.Sprintf("Delta: %s (%s)\n", note.Delta.Text, note.Delta.Tone))
	if note.Direction != "" {
		builder.WriteString(fmt.Sprintf("Goal: %s\n", strings.ReplaceAll(string(note.Direction), "_", " ")))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

// LogNotifier writes notifications to the log. Used when no remote channel is
// configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the notification at warn level.
func (l *LogNotifier) Notify(_ context.Context, note Notification) error {
	l.logger.Warn().
		Str("kind", string(note.Kind)).
		Str("day", note.Day.String()).
		Str("current", note.Current).
		Str("target", note.Target).
		Str("delta", note.Delta.Text).
		Str("direction", string(note.Direction)).
		Str("note", strings.TrimSpace(note.AdditionalMsg)).
		Msg("adverse delta")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
