// Package whatsapp sends text messages through an Evolution API instance.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cexll/pomotask/internal/model"
)

// Config identifies the Evolution API instance
type Config struct {
	APIURL       string
	APIKey       string
	InstanceName string
}

// Configured reports whether every field needed to send messages is present
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIURL) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.InstanceName) != ""
}

// Client talks to the Evolution API sendText endpoint
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New returns a client, or nil when the integration is not configured
func New(cfg Config) *Client {
	if !cfg.Configured() {
		return nil
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient overrides the HTTP client (tests)
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/message/sendText/%s", c.cfg.APIURL, c.cfg.InstanceName)
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText delivers text to the given number. Any non-2xx response is an error.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload, err := json.Marshal(sendTextRequest{Number: to, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[WhatsApp] Send to %s failed: %v", to, err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("[WhatsApp] Send to %s rejected: %d", to, resp.StatusCode)
		return fmt.Errorf("evolution API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// SendTaskList sends the numbered list of incomplete tasks
func (c *Client) SendTaskList(ctx context.Context, to string, tasks []model.Task) error {
	return c.SendText(ctx, to, FormatTaskList(tasks))
}

// SendTaskSummary sends the daily summary of tasks
func (c *Client) SendTaskSummary(ctx context.Context, to string, tasks []model.Task) error {
	return c.SendText(ctx, to, FormatSummary(tasks))
}
