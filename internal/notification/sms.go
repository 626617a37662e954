package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultSMSBaseURL = "https://api.twilio.com/2010-04-01/Accounts/"

// SMSConfig holds carrier credentials.
type SMSConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	Sender     string
	Timeout    time.Duration
}

// SMSNotifier posts messages to a Twilio-compatible REST gateway.
type SMSNotifier struct {
	accountSID string
	authToken  string
	sender     string
	baseURL    string
	http       *http.Client
}

// NewSMSNotifier creates a notifier for the given gateway. An empty BaseURL
// targets Twilio itself.
func NewSMSNotifier(cfg SMSConfig) (*SMSNotifier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("sms gateway credentials are required")
	}
	if cfg.Sender == "" {
		return nil, fmt.Errorf("sms sender is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultSMSBaseURL + cfg.AccountSID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSNotifier{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		sender:     cfg.Sender,
		baseURL:    base,
		http:       &http.Client{Timeout: timeout},
	}, nil
}

// Send delivers message as an SMS to message.Destination.
func (n *SMSNotifier) Send(ctx context.Context, message Message) error {
	form := url.Values{}
	form.Set("To", message.Destination)
	form.Set("From", n.sender)
	form.Set("Body", message.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/Messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		gwErr := &GatewayError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var apiErr gatewayErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			gwErr.Code = apiErr.Code
			gwErr.Message = apiErr.Message
		}
		return gwErr
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GatewayError is a non-2xx answer from the SMS gateway.
type GatewayError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("sms gateway: %s (code %d, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("sms gateway: %s (status %d)", e.Message, e.StatusCode)
}

type gatewayErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
