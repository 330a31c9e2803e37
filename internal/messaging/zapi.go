package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultZAPIBaseURL is the production Z-API endpoint root.
const DefaultZAPIBaseURL = "https://api.z-api.io"

// defaultHTTPTimeout bounds each gateway round trip.
const defaultHTTPTimeout = 15 * time.Second

// ZAPIOpts holds configuration options for the Z-API gateway client.
type ZAPIOpts struct {
	InstanceID    string
	InstanceToken string
	ClientToken   string
	BaseURL       string
	HTTPClient    *http.Client
	MaxAttempts   int
	RetryDelay    time.Duration
}

// ZAPIOption defines a configuration option for the Z-API client.
type ZAPIOption func(*ZAPIOpts)

// WithInstanceID sets the Z-API instance ID, overriding $ZAPI_INSTANCE_ID.
func WithInstanceID(id string) ZAPIOption {
	return func(o *ZAPIOpts) { o.InstanceID = id }
}

// WithInstanceToken sets the instance token, overriding $ZAPI_INSTANCE_TOKEN.
func WithInstanceToken(token string) ZAPIOption {
	return func(o *ZAPIOpts) { o.InstanceToken = token }
}

// WithClientToken sets the account client token, overriding $ZAPI_CLIENT_TOKEN.
func WithClientToken(token string) ZAPIOption {
	return func(o *ZAPIOpts) { o.ClientToken = token }
}

// WithBaseURL overrides the gateway root; used by tests.
func WithBaseURL(url string) ZAPIOption {
	return func(o *ZAPIOpts) { o.BaseURL = url }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) ZAPIOption {
	return func(o *ZAPIOpts) { o.HTTPClient = c }
}

// WithZAPIMaxAttempts sets the send retry budget.
func WithZAPIMaxAttempts(n int) ZAPIOption {
	return func(o *ZAPIOpts) { o.MaxAttempts = n }
}

// WithZAPIRetryDelay sets the base backoff delay.
func WithZAPIRetryDelay(d time.Duration) ZAPIOption {
	return func(o *ZAPIOpts) { o.RetryDelay = d }
}

// ZAPIService delivers messages through the hosted Z-API WhatsApp gateway.
type ZAPIService struct {
	instanceID    string
	instanceToken string
	clientToken   string
	baseURL       string
	httpClient    *http.Client
	maxAttempts   int
	retryDelay    time.Duration
	sleep         func(time.Duration)
}

// NewZAPIService creates a Z-API delivery service. Credentials fall back to
// the ZAPI_INSTANCE_ID, ZAPI_INSTANCE_TOKEN and ZAPI_CLIENT_TOKEN
// environment variables.
func NewZAPIService(opts ...ZAPIOption) (*ZAPIService, error) {
	cfg := ZAPIOpts{
		BaseURL:     DefaultZAPIBaseURL,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = os.Getenv("ZAPI_INSTANCE_ID")
	}
	if cfg.InstanceToken == "" {
		cfg.InstanceToken = os.Getenv("ZAPI_INSTANCE_TOKEN")
	}
	if cfg.ClientToken == "" {
		cfg.ClientToken = os.Getenv("ZAPI_CLIENT_TOKEN")
	}

	slog.Debug("ZAPI client config loaded",
		"instance_id_set", cfg.InstanceID != "",
		"instance_token_set", cfg.InstanceToken != "",
		"client_token_set", cfg.ClientToken != "")

	if cfg.InstanceID == "" || cfg.InstanceToken == "" || cfg.ClientToken == "" {
		return nil, fmt.Errorf("ZAPI_INSTANCE_ID, ZAPI_INSTANCE_TOKEN and ZAPI_CLIENT_TOKEN must be provided")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &ZAPIService{
		instanceID:    cfg.InstanceID,
		instanceToken: cfg.InstanceToken,
		clientToken:   cfg.ClientToken,
		baseURL:       cfg.BaseURL,
		httpClient:    httpClient,
		maxAttempts:   cfg.MaxAttempts,
		retryDelay:    cfg.RetryDelay,
		sleep:         time.Sleep,
	}, nil
}

// ValidateAndCanonicalizeRecipient normalizes the recipient to digits only.
func (s *ZAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return NormalizePhone(recipient)
}

// SendMessage sends a text message through the gateway's send-text endpoint,
// retrying transport failures up to the configured budget.
func (s *ZAPIService) SendMessage(ctx context.Context, to string, body string) error {
	phone, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	payload := map[string]string{"phone": phone, "message": body}
	err = sendWithRetry(ctx, phone, "text", s.maxAttempts, s.retryDelay, s.sleep, func() error {
		return s.post(ctx, "send-text", payload)
	})
	if err != nil {
		return err
	}
	slog.Info("ZAPIService message sent", "to", phone, "body_length", len(body))
	return nil
}

// SendAudio sends base64-encoded MP3 audio through the send-audio endpoint.
func (s *ZAPIService) SendAudio(ctx context.Context, to string, audioBase64, filename string) error {
	phone, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	payload := map[string]string{"phone": phone, "audio": audioBase64, "fileName": filename}
	err = sendWithRetry(ctx, phone, "audio", s.maxAttempts, s.retryDelay, s.sleep, func() error {
		return s.post(ctx, "send-audio", payload)
	})
	if err != nil {
		return err
	}
	slog.Info("ZAPIService audio sent", "to", phone, "filename", filename)
	return nil
}

// InstanceStatus reports whether the gateway instance is connected to
// WhatsApp. Used by the health endpoint, not by the send path.
type InstanceStatus struct {
	Connected           bool   `json:"connected"`
	SmartphoneConnected bool   `json:"smartphoneConnected"`
	Error               string `json:"error,omitempty"`
}

// Status queries the gateway instance status endpoint.
func (s *ZAPIService) Status(ctx context.Context) (*InstanceStatus, error) {
	url := fmt.Sprintf("%s/instances/%s/token/%s/status", s.baseURL, s.instanceID, s.instanceToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Token", s.clientToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway status returned %d", resp.StatusCode)
	}

	var status InstanceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode gateway status: %w", err)
	}
	return &status, nil
}

// post sends a JSON payload to a gateway operation endpoint.
func (s *ZAPIService) post(ctx context.Context, operation string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", operation, err)
	}

	url := fmt.Sprintf("%s/instances/%s/token/%s/%s", s.baseURL, s.instanceID, s.instanceToken, operation)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Token", s.clientToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway %s returned %d: %s", operation, resp.StatusCode, string(body))
	}
	return nil
}
