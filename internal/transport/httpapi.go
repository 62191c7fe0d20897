package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/nuntius/internal/domain"
)

// HTTPAPITransport sends through a SparkPost-shaped transactional email API:
// POST {baseURL}/transmissions with an Authorization header carrying the
// API key. Any transactional API with an equivalent "recipients + content"
// envelope can be pointed at a compatible baseURL.
type HTTPAPITransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPAPITransport builds a transport against baseURL using apiKey.
func NewHTTPAPITransport(baseURL, apiKey string) *HTTPAPITransport {
	return &HTTPAPITransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Open validates configuration. The HTTP API is stateless per request, so
// there is no session to hold; the connection manager's recycling logic
// simply re-validates and continues.
func (t *HTTPAPITransport) Open(ctx context.Context) error {
	if t.apiKey == "" {
		return fmt.Errorf("%w: missing API key", ErrServerDisconnected)
	}
	return nil
}

type transmissionRequest struct {
	Recipients []recipient `json:"recipients"`
	Content    content     `json:"content"`
}

type recipient struct {
	Address address `json:"address"`
}

type address struct {
	Email string `json:"email"`
}

type content struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

type transmissionResponse struct {
	Results struct {
		ID string `json:"id"`
	} `json:"results"`
	Errors []struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"errors"`
}

func (t *HTTPAPITransport) Send(ctx context.Context, msg *domain.EmailMessage) (domain.SendOutcome, error) {
	payload := transmissionRequest{
		Recipients: []recipient{{Address: address{Email: msg.To}}},
		Content: content{
			From:    msg.From,
			Subject: msg.Subject,
			HTML:    msg.HTMLBody,
			Text:    msg.TextBody,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.SendOutcome{}, fmt.Errorf("%w: marshal: %v", ErrTransient, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return domain.SendOutcome{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.SendOutcome{}, fmt.Errorf("%w: %v", ErrServerDisconnected, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return domain.SendOutcome{}, classifyHTTPStatus(resp.StatusCode, data)
	}

	var result transmissionResponse
	_ = json.Unmarshal(data, &result)

	if len(result.Errors) > 0 {
		return domain.SendOutcome{HasStatus: true, Rejected: true}, fmt.Errorf("%w: %s", ErrRecipientRefused, result.Errors[0].Message)
	}

	return domain.SendOutcome{MessageID: result.Results.ID, HasStatus: result.Results.ID != ""}, nil
}

func (t *HTTPAPITransport) Close() error {
	return nil
}

// classifyHTTPStatus maps a transactional API's HTTP status onto the
// connection manager's three buckets (spec.md §4.4). 4xx other than 429
// addresses this specific request/recipient and is not retried; 429 and 5xx
// are transient; network-level failures above already map to
// ErrServerDisconnected before this is reached.
func classifyHTTPStatus(status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, body)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, body)
	case status >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrRecipientRefused, status, body)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, body)
	}
}
