package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const maxN8NResponse = 1 << 20

// N8N posts the message to an n8n workflow webhook
type N8N struct {
	url        string
	httpClient *http.Client
}

// NewN8N creates the workflow provider
func NewN8N(url string, httpClient *http.Client) *N8N {
	return &N8N{url: url, httpClient: httpClient}
}

func (n *N8N) Name() string { return "n8n" }

// Reply sends {message, context, user_id}. The reply is "response", else "message", else the raw body.
func (n *N8N) Reply(ctx context.Context, req Request) (string, error) {
	body, err := n8nBody(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("n8n request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxN8NResponse))
	if err != nil {
		return "", fmt.Errorf("failed to read n8n response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("n8n returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("n8n returned invalid JSON")
	}

	for _, key := range []string{"response", "message"} {
		if v := gjson.GetBytes(raw, key); v.Exists() && v.String() != "" {
			return v.String(), nil
		}
	}
	return string(bytes.TrimSpace(raw)), nil
}

// n8nBody embeds the client's context verbatim
func n8nBody(req Request) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "message", req.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to build n8n body: %w", err)
	}
	if len(bytes.TrimSpace(req.Context)) > 0 {
		if body, err = sjson.SetRawBytes(body, "context", req.Context); err != nil {
			return nil, fmt.Errorf("failed to build n8n body: %w", err)
		}
	}
	if body, err = sjson.SetBytes(body, "user_id", req.UserID); err != nil {
		return nil, fmt.Errorf("failed to build n8n body: %w", err)
	}
	return body, nil
}
