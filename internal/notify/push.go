package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// PushClient posts notifications to the push provider's HTTP endpoint.
type PushClient struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

// NewPushClient creates a push provider client
func NewPushClient(endpoint, key string, timeout time.Duration) *PushClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PushClient{
		Endpoint: endpoint,
		Key:      key,
		Client:   &http.Client{Timeout: timeout},
	}
}

type pushMessage struct {
	UserID string  `json:"user_id"`
	Notify Payload `json:"notification"`
}

// Send delivers a single push message
func (c *PushClient) Send(ctx context.Context, userID uuid.UUID, p Payload) error {
	body, err := json.Marshal(pushMessage{UserID: userID.String(), Notify: p})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.Key)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: provider returned %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

// MarkRead asks the provider to flag the user's pending notifications
// of a kind as read
func (c *PushClient) MarkRead(ctx context.Context, userID uuid.UUID, kind string) error {
	body, err := json.Marshal(map[string]string{"user_id": userID.String(), "kind": kind})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/read", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.Key)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	resp.Body.Close()
	return nil
}
