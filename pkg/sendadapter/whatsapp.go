package sendadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppConfig holds Cloud API settings
type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
}

// WhatsAppAdapter sends template messages through the WhatsApp Cloud API
type WhatsAppAdapter struct {
	cfg        WhatsAppConfig
	httpClient *http.Client
}

// NewWhatsAppAdapter creates a new WhatsAppAdapter
func NewWhatsAppAdapter(cfg WhatsAppConfig) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Template         waTemplate `json:"template"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts a template message and returns the provider's message id
func (a *WhatsAppAdapter) Send(ctx context.Context, to Recipient, p Payload) (Result, error) {
	if to.Phone == "" {
		return Result{}, Permanent(errors.New("recipient has no phone number"))
	}

	reqBody := waRequest{
		MessagingProduct: "whatsapp",
		To:               to.Phone,
		Type:             "template",
	}
	reqBody.Template.Name = p.TemplateName
	reqBody.Template.Language.Code = p.Language
	if len(p.Parameters) > 0 {
		params := make([]waParameter, len(p.Parameters))
		for i, v := range p.Parameters {
			params[i] = waParameter{Type: "text", Text: v}
		}
		reqBody.Template.Components = []waComponent{{Type: "body", Parameters: params}}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, Permanent(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var out waResponse
	_ = json.Unmarshal(respBody, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		err := fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Result{}, Permanent(err)
		}
		return Result{}, err
	}

	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return Result{}, errors.New("whatsapp api response has no message id")
	}
	return Result{ExternalMessageID: out.Messages[0].ID}, nil
}
