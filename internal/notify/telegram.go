package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ktxmacro.dev/ktx-macro-go/internal/logging"
	"ktxmacro.dev/ktx-macro-go/internal/models"
)

const (
	defaultBaseURL = "https://api.telegram.org/bot"
	requestTimeout = 30 * time.Second

	// Telegram allows at most 30 messages per second per bot.
	rateLimitDelay = 34 * time.Millisecond

	parseMode = "HTML"
)

// apiResponse is the envelope every bot API call returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Telegram sends messages through the Telegram bot API. Sends are throttled
// to stay under the API rate limit and report plain success or failure.
type Telegram struct {
	config   models.TelegramConfig
	client   *http.Client
	baseURL  string
	lastSend time.Time
	logger   *logging.Logger
	mu       sync.Mutex
}

// NewTelegram creates a notifier with the given credentials
func NewTelegram(config models.TelegramConfig) *Telegram {
	return &Telegram{
		config:  config,
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: defaultBaseURL,
		logger:  logging.NewLogger("notify"),
	}
}

// WithBaseURL overrides the API endpoint, primarily for tests
func (t *Telegram) WithBaseURL(base string) *Telegram {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseURL = base
	return t
}

// SetConfig replaces the notifier credentials
func (t *Telegram) SetConfig(config models.TelegramConfig) {
	t.mu.Lock()
	t.config = config
	t.mu.Unlock()
	t.logger.DebugWithContext("telegram config updated", map[string]interface{}{
		"enabled": config.Enabled,
	})
}

// IsConfigured reports whether notifications are enabled and both
// credentials are present.
func (t *Telegram) IsConfigured() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.Enabled && t.config.BotToken != "" && t.config.ChatID != ""
}

// UseFinishedMessage reports whether a completion notice should be sent
// after a sequence finishes.
func (t *Telegram) UseFinishedMessage() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.UseFinishedMessage
}

// SendMessage delivers a message to the configured chat. An unconfigured
// notifier or a blank message is not sent and reports failure.
func (t *Telegram) SendMessage(message string) bool {
	if !t.IsConfigured() {
		t.logger.Warn("telegram not configured, message not sent")
		return false
	}
	if strings.TrimSpace(message) == "" {
		t.logger.Warn("empty telegram message not sent")
		return false
	}

	t.throttle()

	t.mu.Lock()
	token := t.config.BotToken
	chatID := t.config.ChatID
	base := t.baseURL
	t.mu.Unlock()

	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", message)
	form.Set("parse_mode", parseMode)

	ok := t.post(base+token+"/sendMessage", form)

	t.mu.Lock()
	t.lastSend = time.Now()
	t.mu.Unlock()

	if !ok {
		t.logger.Error("telegram message send failed", nil)
	}
	return ok
}

// TestConnection sends a timestamped probe message to verify the
// credentials end to end.
func (t *Telegram) TestConnection() bool {
	if !t.IsConfigured() {
		t.logger.Error("telegram configuration incomplete", nil)
		return false
	}

	probe := fmt.Sprintf("🤖 KTX Macro connection test\nTime: %s",
		time.Now().Format("2006-01-02 15:04:05"))
	ok := t.SendMessage(probe)

	if ok {
		t.logger.Info("telegram connection test succeeded")
	} else {
		t.logger.Error("telegram connection test failed", nil)
	}
	return ok
}

func (t *Telegram) throttle() {
	t.mu.Lock()
	since := time.Since(t.lastSend)
	t.mu.Unlock()

	if since < rateLimitDelay {
		time.Sleep(rateLimitDelay - since)
	}
}

func (t *Telegram) post(requestURL string, form url.Values) bool {
	resp, err := t.client.PostForm(requestURL, form)
	if err != nil {
		t.logger.Error("telegram request failed", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Error("telegram response read failed", err)
		return false
	}

	if resp.StatusCode != http.StatusOK {
		t.logger.ErrorWithContext("telegram http error", fmt.Errorf("status %d", resp.StatusCode), map[string]interface{}{
			"body": string(body),
		})
		return false
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.logger.Error("telegram response parse failed", err)
		return false
	}
	if !result.OK {
		t.logger.ErrorWithContext("telegram api error", nil, map[string]interface{}{
			"description": result.Description,
		})
		return false
	}
	return true
}
