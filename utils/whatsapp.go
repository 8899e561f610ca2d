package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppClient sends text messages through a Z-API instance.
type WhatsAppClient struct {
	BaseURL    string
	InstanceID string
	Token      string
	httpClient *http.Client
}

func NewWhatsAppClient(baseURL, instanceID, token string) *WhatsAppClient {
	return &WhatsAppClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		InstanceID: instanceID,
		Token:      token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendTextReq struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (c *WhatsAppClient) SendText(ctx context.Context, phone, message string) error {
	if c.InstanceID == "" || c.Token == "" {
		return fmt.Errorf("whatsapp gateway is not configured")
	}

	url := fmt.Sprintf("%s/instances/%s/token/%s/send-text", c.BaseURL, c.InstanceID, c.Token)

	jsonBody, err := json.Marshal(sendTextReq{Phone: phone, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("z-api returned status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	return nil
}
