package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
)

// WhatsAppProvider sends messages through a WhatsApp Cloud API compatible
// endpoint.
type WhatsAppProvider struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	client        *http.Client
}

type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

func NewWhatsAppProvider(config WhatsAppConfig) *WhatsAppProvider {
	if config.BaseURL == "" {
		config.BaseURL = "https://graph.facebook.com/v19.0"
	}

	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &WhatsAppProvider{
		baseURL:       config.BaseURL,
		phoneNumberID: config.PhoneNumberID,
		accessToken:   config.AccessToken,
		client:        &http.Client{Timeout: config.Timeout},
	}
}

type whatsAppSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage posts one outbound message. Transport errors, 5xx and 429
// surface as transient errors so the dispatcher's backoff applies; other
// 4xx responses are permanent.
func (p *WhatsAppProvider) SendMessage(ctx context.Context, message *models.SendMessagePayload) (string, error) {
	body, err := buildWhatsAppBody(message)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", p.baseURL, p.phoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &models.TransientProviderError{Err: err}
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.TransientProviderError{Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", &models.TransientProviderError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("provider returned %s", http.StatusText(resp.StatusCode)),
		}
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("provider rejected message (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed whatsAppSendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Messages) == 0 {
		return "", fmt.Errorf("unexpected provider response: %s", string(respBody))
	}

	return parsed.Messages[0].ID, nil
}

func buildWhatsAppBody(message *models.SendMessagePayload) ([]byte, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                message.ContactID,
	}

	switch message.Kind {
	case models.MessageKindText:
		payload["type"] = "text"
		payload["text"] = map[string]any{"body": message.Text}
	case models.MessageKindMedia:
		payload["type"] = message.MediaType
		payload[message.MediaType] = map[string]any{
			"link":    message.MediaURL,
			"caption": message.Caption,
		}
	case models.MessageKindTemplate:
		language := message.Language
		if language == "" {
			language = "en"
		}

		components := []map[string]any{}

		if len(message.Params) > 0 {
			parameters := make([]map[string]any, len(message.Params))
			for i, param := range message.Params {
				parameters[i] = map[string]any{"type": "text", "text": param}
			}

			components = append(components, map[string]any{
				"type":       "body",
				"parameters": parameters,
			})
		}

		payload["type"] = "template"
		payload["template"] = map[string]any{
			"name":       message.TemplateID,
			"language":   map[string]any{"code": language},
			"components": components,
		}
	default:
		return nil, fmt.Errorf("unknown message kind %q", message.Kind)
	}

	return json.Marshal(payload)
}

var _ MessageProvider = (*WhatsAppProvider)(nil)
