package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of "<timestamp>.<body>"
const SignatureHeader = "X-Notification-Signature"

// TimestampHeader carries the unix timestamp used in the signature
const TimestampHeader = "X-Notification-Timestamp"

// ErrNotConfigured is returned when no endpoint is configured
var ErrNotConfigured = errors.New("webhook endpoint not configured")

// Payload is the JSON body posted to the endpoint
type Payload struct {
	Event        string               `json:"event"`
	Notification *domain.Notification `json:"notification"`
	Attempt      int                  `json:"attempt"`
	SentAt       time.Time            `json:"sentAt"`
}

// Dispatcher posts notifications to the configured webhook endpoint
type Dispatcher struct {
	url    string
	secret []byte
	client *http.Client
	log    *logger.Logger
}

// NewDispatcher creates a new webhook dispatcher
func NewDispatcher(url, secret string, timeout time.Duration, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Dispatch posts one notification. attempt starts at 1.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification, attempt int) error {
	if d.url == "" {
		return ErrNotConfigured
	}

	now := time.Now().UTC()
	body, err := json.Marshal(Payload{
		Event:        "notification." + string(n.Type),
		Notification: n,
		Attempt:      attempt,
		SentAt:       now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "HR-Notification-Orchestrator/1.0")
	req.Header.Set("X-Notification-Id", n.NotificationID)
	if len(d.secret) > 0 {
		ts := strconv.FormatInt(now.Unix(), 10)
		req.Header.Set(TimestampHeader, ts)
		req.Header.Set(SignatureHeader, Sign(d.secret, ts, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	d.log.Debug("Webhook delivered", "notification_id", n.NotificationID, "attempt", attempt)
	return nil
}

// Sign computes the signature sent in SignatureHeader
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
