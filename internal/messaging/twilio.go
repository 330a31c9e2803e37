package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio delivery backend.
type TwilioOpts struct {
	AccountSID  string
	AuthToken   string
	FromWhats   string
	MaxAttempts int
	RetryDelay  time.Duration
}

// TwilioOption defines a configuration option for the Twilio backend.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID, overriding $TWILIO_ACCOUNT_SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, overriding $TWILIO_AUTH_TOKEN.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number, overriding $TWILIO_FROM_NUMBER.
func WithFromWhats(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromWhats = from }
}

// TwilioService delivers messages through Twilio's WhatsApp API, for
// deployments fronted by Twilio instead of Z-API.
type TwilioService struct {
	client      *twilio.RestClient
	fromWhats   string
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(time.Duration)
}

// NewTwilioService creates a Twilio delivery service. Credentials fall back
// to environment variables.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	cfg := TwilioOpts{
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}

	slog.Debug("Twilio client config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_whats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client:      client,
		fromWhats:   cfg.FromWhats,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		sleep:       time.Sleep,
	}, nil
}

// ValidateAndCanonicalizeRecipient normalizes the recipient to digits only.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return NormalizePhone(recipient)
}

// SendMessage sends a WhatsApp text message via the Twilio API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	phone, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + phone)
	params.SetFrom(s.fromWhats)
	params.SetBody(body)

	err = sendWithRetry(ctx, phone, "text", s.maxAttempts, s.retryDelay, s.sleep, func() error {
		_, sendErr := s.client.Api.CreateMessage(params)
		return sendErr
	})
	if err != nil {
		return err
	}
	slog.Debug("Twilio message sent", "to", phone)
	return nil
}

// SendAudio sends audio as a media message. Twilio requires media to be
// fetchable by URL, so base64 payloads are not supported on this backend and
// the caller falls back to text-only delivery.
func (s *TwilioService) SendAudio(ctx context.Context, to string, audioBase64, filename string) error {
	slog.Debug("Twilio SendAudio unsupported, caller should fall back to text", "to", to, "filename", filename)
	return fmt.Errorf("audio delivery not supported by the twilio backend")
}
