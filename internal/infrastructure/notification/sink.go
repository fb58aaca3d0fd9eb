// Package notification delivers notifications through the external
// notification service and drives stockout delivery off the outbox.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medstock/internal/domain/notify"
)

const defaultSendTimeout = 5 * time.Second

// SinkConfig holds HTTP sink configuration.
type SinkConfig struct {
	// BaseURL of the notification service.
	BaseURL string

	// ServiceSecret signs the HS256 service token.
	ServiceSecret string

	// SendTimeout bounds each delivery attempt (default 5s).
	SendTimeout time.Duration
}

// HTTPSink posts notifications to the notification service. Failures are
// returned to the caller (the outbox relay) which retries with backoff.
type HTTPSink struct {
	baseURL string
	secret  []byte
	http    *http.Client
}

// NewHTTPSink creates an HTTP notification sink.
func NewHTTPSink(cfg SinkConfig) *HTTPSink {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &HTTPSink{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  []byte(cfg.ServiceSecret),
		http:    &http.Client{Timeout: timeout},
	}
}

var _ notify.Sink = (*HTTPSink)(nil)

type notificationBody struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send posts one notification.
func (s *HTTPSink) Send(ctx context.Context, n notify.Notification) error {
	payload, err := json.Marshal(notificationBody{
		UserID:  n.UserID.String(),
		Email:   n.Email,
		Subject: n.Subject,
		Body:    n.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "medstock",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	return nil
}
