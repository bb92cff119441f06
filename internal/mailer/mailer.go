// Package mailer sends transactional email for the auth service.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Mailer delivers a verification email containing the activation link.
// Implementations must treat the verify URL as opaque; it embeds the
// full selector.verifier token string.
type Mailer interface {
	SendVerification(ctx context.Context, toEmail, username, verifyURL string) error
}

// HTTPMailer talks to a transactional email REST API (Resend-style):
// POST {base}/emails with a bearer key and a JSON payload.
type HTTPMailer struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

// NewHTTPMailer builds a mailer for the given API endpoint. The from
// address appears as the sender of all verification mail.
func NewHTTPMailer(baseURL, apiKey, from string) *HTTPMailer {
	return &HTTPMailer{
		apiKey:  apiKey,
		from:    from,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendVerification posts a verification email for the given recipient.
func (m *HTTPMailer) SendVerification(ctx context.Context, toEmail, username, verifyURL string) error {
	payload := sendRequest{
		From:    m.from,
		To:      []string{toEmail},
		Subject: "Verify your Rythmix account",
		HTML: `
			<p>Hi ` + username + `,</p>
			<p>Welcome to Rythmix! Please confirm your email address by clicking the link below:</p>
			<p><a href="` + verifyURL + `">Verify my email</a></p>
			<p>The link expires in 24 hours. If you did not create this account, ignore this message.</p>
		`,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(body) == 0 {
			return errors.New("mail send failed: " + resp.Status)
		}
		return fmt.Errorf("mail send failed: %s: %s", resp.Status, body)
	}
	return nil
}
