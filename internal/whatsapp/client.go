// Package whatsapp is the supplier-facing delivery channel, backed by a
// gowa-style REST gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"procurement_backend/platform/config"
	"procurement_backend/platform/logger"
	"procurement_backend/platform/phone"

	"golang.org/x/time/rate"
)

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Results struct {
		MessageID string `json:"message_id"`
	} `json:"results"`
}

func NewClient(cfg config.SupplierChannelConfig, log *logger.Logger) *Client {
	if cfg.GetChatGatewayURL() == "" {
		return nil
	}

	sendRate := cfg.GetChatSendRate()
	if sendRate <= 0 {
		sendRate = 1
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetChatGatewayURL(), "/"),
		apiKey:   cfg.GetChatGatewayKey(),
		deviceID: cfg.GetChatGatewayDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(sendRate), 1),
		log:      log,
	}
}

// Deliver sends one message and returns the gateway's message id. The rate
// limiter throttles the whole process; gateways ban devices that burst.
func (c *Client) Deliver(ctx context.Context, phoneNumber string, message string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("whatsapp gateway not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	payload := gowaRequest{
		Phone:   normalized,
		Message: message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded gowaResponse
	if err := json.Unmarshal(data, &decoded); err == nil && decoded.Results.MessageID != "" {
		c.log.Info("whatsapp sent via gowa", "phone", normalized, "messageId", decoded.Results.MessageID)
		return decoded.Results.MessageID, nil
	}

	c.log.Info("whatsapp sent via gowa", "phone", normalized)
	return "", nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
