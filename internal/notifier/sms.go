package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
	buildinfo "github.com/good-yellow-bee/nurserywatch/pkg/config"
)

// maxSMSLength keeps a message within a few concatenated segments.
const maxSMSLength = 480

// SMSConfig configures the HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	From       string
	Timeout    time.Duration
}

// Validate validates the SMS configuration.
func (c *SMSConfig) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("SMS gateway URL is required")
	}
	if !strings.HasPrefix(c.GatewayURL, "http://") && !strings.HasPrefix(c.GatewayURL, "https://") {
		return fmt.Errorf("SMS gateway URL must be http or https")
	}
	return nil
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// SMSNotifier posts alerts to an SMS gateway.
type SMSNotifier struct {
	config SMSConfig
	http   *resty.Client
}

// NewSMSNotifier creates a new SMS notifier.
func NewSMSNotifier(config SMSConfig) (*SMSNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sms config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", buildinfo.UserAgent())
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	return &SMSNotifier{config: config, http: client}, nil
}

// Name returns "sms".
func (s *SMSNotifier) Name() models.Channel {
	return models.ChannelSMS
}

// Deliver sends the message text to msg.Contact.
func (s *SMSNotifier) Deliver(ctx context.Context, msg *Message) error {
	to := strings.TrimSpace(msg.Contact)
	if to == "" {
		return ErrContactRequired
	}

	text := smsText(msg)

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(smsRequest{To: to, From: s.config.From, Message: text}).
		Post(s.config.GatewayURL)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// Close is a no-op for SMS notifier.
func (s *SMSNotifier) Close() error {
	return nil
}

func smsText(msg *Message) string {
	text := strings.TrimSpace(msg.Body)
	if text == "" {
		text = msg.Title
	}
	if msg.Test {
		text = "[TEST] " + text
	}
	if r := []rune(text); len(r) > maxSMSLength {
		text = string(r[:maxSMSLength-3]) + "..."
	}
	return text
}
