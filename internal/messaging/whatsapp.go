package messaging

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

	"pipeline_backend/platform/config"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/phone"
)

// WhatsAppClient delivers rendered messages through a gowa-compatible
// WhatsApp gateway. A nil client is a valid no-op.
type WhatsAppClient struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewWhatsAppClient returns nil when no gateway is configured.
func NewWhatsAppClient(cfg config.MessagingConfig, log *logger.Logger) *WhatsAppClient {
	if !cfg.IsWhatsAppEnabled() {
		return nil
	}

	return &WhatsAppClient{
		baseURL: strings.TrimRight(cfg.GetWhatsAppAPIURL(), "/"),
		token:   cfg.GetWhatsAppAPIToken(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *WhatsAppClient) SendWhatsApp(ctx context.Context, phoneNumber string, text string) error {
	if c == nil {
		return nil
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	body, err := json.Marshal(gowaRequest{Phone: normalized, Message: text})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.token))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("whatsapp sent", "phone", normalized)
	return nil
}

func formatAuthHeader(token string) string {
	if strings.HasPrefix(strings.ToLower(token), "basic ") {
		return token
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(token))
	return "Basic " + encoded
}
