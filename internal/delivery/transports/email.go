package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
)

// EmailTransport delivers over the SendGrid v3 mail send API.
type EmailTransport struct {
	client *http.Client
	url    string
	apiKey string
	from   string
}

func NewEmailTransport(url, apiKey, from string, timeout time.Duration) *EmailTransport {
	return &EmailTransport{
		client: &http.Client{Timeout: timeout},
		url:    url,
		apiKey: apiKey,
		from:   from,
	}
}

func (t *EmailTransport) Name() string { return "email" }

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

func (t *EmailTransport) Send(ctx context.Context, p *contracts.EventPayload) error {
	if p.UserEmail == "" {
		return apperrors.NewPermanentFailure("payload has no email address", nil)
	}

	msg := FormatMessage(p)
	body, err := json.Marshal(sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: p.UserEmail}}}},
		From:             sendGridAddress{Email: t.from},
		Subject:          msg,
		Content:          []sendGridContent{{Type: "text/plain", Value: msg}},
	})
	if err != nil {
		return apperrors.NewInternal("encode email request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewInternal("build email request", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return apperrors.NewTransport("email provider unreachable", err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return classifyStatus("email", resp.StatusCode)
	}
	return nil
}
