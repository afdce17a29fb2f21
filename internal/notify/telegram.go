package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	defaultTelegramAttempts = 1
	defaultTelegramDelay    = time.Second
	defaultTelegramTimeout  = 10 * time.Second
)

// TelegramSender delivers notifications through the Telegram Bot API.
type TelegramSender struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	channel    string
	maxRetries int
	retryDelay time.Duration
}

// TelegramOption configures a TelegramSender.
type TelegramOption func(*telegramOptions)

type telegramOptions struct {
	endpoint   string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// WithTelegramEndpoint overrides the Bot API endpoint format, e.g.
// "http://host/bot%s/%s".
func WithTelegramEndpoint(endpoint string) TelegramOption {
	return func(o *telegramOptions) { o.endpoint = endpoint }
}

// WithTelegramRetry sets the attempt count and the base back-off delay.
// Senders make a single attempt unless this is set.
func WithTelegramRetry(maxRetries int, delay time.Duration) TelegramOption {
	return func(o *telegramOptions) {
		o.maxRetries = maxRetries
		o.retryDelay = delay
	}
}

// WithTelegramTimeout bounds each Bot API request.
func WithTelegramTimeout(d time.Duration) TelegramOption {
	return func(o *telegramOptions) { o.timeout = d }
}

// NewTelegramSender authenticates the bot and returns a sender for chatID,
// which is either a numeric chat id or an "@channel" username.
func NewTelegramSender(token, chatID string, opts ...TelegramOption) (*TelegramSender, error) {
	o := telegramOptions{
		endpoint:   tgbotapi.APIEndpoint,
		maxRetries: defaultTelegramAttempts,
		retryDelay: defaultTelegramDelay,
		timeout:    defaultTelegramTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries <= 0 {
		o.maxRetries = defaultTelegramAttempts
	}
	if o.timeout <= 0 {
		o.timeout = defaultTelegramTimeout
	}

	s := &TelegramSender{maxRetries: o.maxRetries, retryDelay: o.retryDelay}
	chatID = strings.TrimSpace(chatID)
	switch {
	case strings.HasPrefix(chatID, "@"):
		s.channel = chatID
	default:
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
		}
		s.chatID = id
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, &http.Client{Timeout: o.timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	s.bot = bot
	return s, nil
}

// Send posts the title in bold followed by the message. It returns when ctx
// is done even if the request is still in flight; the HTTP client timeout
// bounds that request.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := fmt.Sprintf("*%s*\n%s",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, title),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, message),
	)

	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("telegram: send: %w", ctx.Err())
			case <-time.After(t.retryDelay * time.Duration(i)):
			}
		}
		err := t.send(ctx, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("telegram: send failed after %d attempts: %w", t.maxRetries, lastErr)
}

// send runs one Bot API call. The library takes no context, so the call runs
// in its own goroutine.
func (t *TelegramSender) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
