package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxTokenResponseBytes = 64 << 10

// tokenClient posts get-token requests. It makes a single attempt and leaves
// timeouts to the configured http.Client.
type tokenClient struct {
	http     *http.Client
	endpoint string
}

type tokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// Request submits the form and returns the checkout token.
func (c tokenClient) Request(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", initiationError("", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", initiationError("", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return "", initiationError("", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", initiationError(fmt.Sprintf("token endpoint returned %s", resp.Status), nil)
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", initiationError(fmt.Sprintf("decode token response: %v", err), err)
	}
	if !strings.EqualFold(out.Status, "success") || strings.TrimSpace(out.Token) == "" {
		reason := strings.TrimSpace(out.Reason)
		if reason == "" {
			reason = fmt.Sprintf("unexpected token response status %q", out.Status)
		}
		return "", initiationError(reason, nil)
	}
	return out.Token, nil
}
