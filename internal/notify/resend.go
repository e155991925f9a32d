package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// DefaultResendURL is the Resend API base URL.
const DefaultResendURL = "https://api.resend.com"

// ResendMailer sends mail through the Resend HTTP API.
type ResendMailer struct {
	apiKey  string
	from    string
	client  *http.Client
	baseURL string
}

// NewResendMailer creates a ResendMailer. An empty baseURL selects DefaultResendURL.
func NewResendMailer(apiKey, from, baseURL string) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, oops.Errorf("resend api key not set")
	}
	if from == "" {
		return nil, oops.Errorf("resend sender address not set")
	}
	if baseURL == "" {
		baseURL = DefaultResendURL
	}

	return &ResendMailer{
		apiKey: apiKey,
		from:   from,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL: baseURL,
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Send posts email to the /emails endpoint.
func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	b, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
		Text:    email.Text,
	})
	if err != nil {
		return oops.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return oops.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return oops.With("to", email.To).Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return oops.
			With("status", resp.StatusCode).
			With("to", email.To).
			Errorf("resend rejected email: %s", string(body))
	}
	return nil
}
