package transports

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
)

// SMSTransport delivers over the Twilio Messages API.
type SMSTransport struct {
	client     *http.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
}

func NewSMSTransport(baseURL, accountSID, authToken, from string, timeout time.Duration) *SMSTransport {
	return &SMSTransport{
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

func (t *SMSTransport) Name() string { return "sms" }

func (t *SMSTransport) Send(ctx context.Context, p *contracts.EventPayload) error {
	if p.UserPhone == "" {
		return apperrors.NewPermanentFailure("payload has no phone number", nil)
	}

	form := url.Values{}
	form.Set("To", p.UserPhone)
	form.Set("From", t.from)
	form.Set("Body", FormatMessage(p))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.NewInternal("build sms request", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return apperrors.NewTransport("sms provider unreachable", err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return classifyStatus("sms", resp.StatusCode)
	}
	return nil
}
