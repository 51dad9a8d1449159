package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
)

// APNSClient posts token-based notifications to the Apple Push
// Notification service HTTP/2 endpoint.
type APNSClient struct {
	client    *http.Client
	baseURL   string
	authToken string
	topic     string
}

func NewAPNSClient(baseURL, authToken, topic string, timeout time.Duration) *APNSClient {
	return &APNSClient{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		topic:     topic,
	}
}

type apnsAlert struct {
	Body string `json:"body"`
}

type apnsAPS struct {
	Alert apnsAlert `json:"alert"`
	Sound string    `json:"sound"`
}

type apnsPayload struct {
	APS     apnsAPS `json:"aps"`
	EventID string  `json:"event_id"`
}

// Push sends one notification to a device token.
func (c *APNSClient) Push(ctx context.Context, deviceToken string, p *contracts.EventPayload) error {
	if deviceToken == "" {
		return apperrors.NewPermanentFailure("empty device token", nil)
	}

	body, err := json.Marshal(apnsPayload{
		APS:     apnsAPS{Alert: apnsAlert{Body: FormatMessage(p)}, Sound: "default"},
		EventID: p.EventID,
	})
	if err != nil {
		return apperrors.NewInternal("encode apns payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/3/device/"+deviceToken, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewInternal("build apns request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("apns-topic", c.topic)
	req.Header.Set("apns-push-type", "alert")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewTransport("apns unreachable", err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return classifyStatus("apns", resp.StatusCode)
	}
	return nil
}
