// Package messaging provides outbound delivery to customers through a
// WhatsApp gateway.
//
// Implementations exist for the Z-API HTTP gateway and for Twilio. Both
// retry transport failures in a bounded loop with linear backoff and surface
// a typed DeliveryError only after exhausting the budget.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// Retry configuration for outbound sends.
const (
	// DefaultMaxAttempts is the bounded retry budget per send.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is multiplied by the attempt number between retries.
	DefaultRetryDelay = time.Second
)

// MinPhoneDigits is the minimum acceptable length for a normalized phone.
const MinPhoneDigits = 8

// Service defines the pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a recipient identifier and
	// returns its digits-only canonical form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendAudio sends base64-encoded MP3 audio to a recipient.
	SendAudio(ctx context.Context, to string, audioBase64, filename string) error
}

// NormalizePhone strips everything but digits from a phone identifier.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < MinPhoneDigits {
		return "", fmt.Errorf("phone %q too short after normalization", phone)
	}
	return digits, nil
}

// sendWithRetry runs op inside the bounded retry loop shared by every
// delivery backend. sleep is injectable for tests.
func sendWithRetry(ctx context.Context, phone, kind string, maxAttempts int, delay time.Duration, sleep func(time.Duration), op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &models.DeliveryError{Phone: phone, Attempts: attempt - 1, Err: err}
		}
		err := op()
		if err == nil {
			if attempt > 1 {
				slog.Info("messaging: send succeeded after retry", "kind", kind, "to", phone, "attempt", attempt)
			}
			return nil
		}
		lastErr = err
		slog.Warn("messaging: send attempt failed", "kind", kind, "to", phone, "attempt", attempt, "max_attempts", maxAttempts, "error", err)
		if attempt < maxAttempts {
			sleep(time.Duration(attempt) * delay)
		}
	}
	return &models.DeliveryError{Phone: phone, Attempts: maxAttempts, Err: lastErr}
}
