package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/assistkit/chatgraph/pkg/chatgraph/tool"
)

// messageDelayMillis is the typing-simulation delay the Evolution API
// applies before delivering the message.
const messageDelayMillis = 1000

// WhatsAppConfig configures delivery through an Evolution API instance.
type WhatsAppConfig struct {
	// BaseURL is the Evolution API endpoint, without a trailing slash.
	BaseURL string
	// Instance is the Evolution instance name.
	Instance string
	// APIKey authenticates requests.
	APIKey string
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// WhatsAppSender sends text messages via the Evolution API.
type WhatsAppSender struct {
	cfg    WhatsAppConfig
	client *http.Client
}

// NewWhatsAppSender validates the configuration and builds a sender.
func NewWhatsAppSender(cfg WhatsAppConfig) (*WhatsAppSender, error) {
	if cfg.BaseURL == "" || cfg.Instance == "" || cfg.APIKey == "" {
		return nil, errors.New("whatsapp: base URL, instance, and API key are all required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WhatsAppSender{cfg: cfg, client: client}, nil
}

// SendText delivers one text message. The Evolution API answers 201 on
// accepted messages; anything else is a failure.
func (s *WhatsAppSender) SendText(ctx context.Context, phoneNumber, text string) error {
	payload, err := json.Marshal(map[string]any{
		"number": phoneNumber,
		"text":   text,
		"delay":  messageDelayMillis,
	})
	if err != nil {
		return fmt.Errorf("whatsapp: encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", s.cfg.BaseURL, s.cfg.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp: send failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// SendWhatsAppInput is the model-facing argument schema for
// send_whatsapp_message.
type SendWhatsAppInput struct {
	PhoneNumber string `json:"phone_number" jsonschema:"recipient phone number in international format, e.g. 5511999999999"`
	Message     string `json:"message" jsonschema:"text content of the message"`
}

// SendWhatsAppMessage builds the send_whatsapp_message tool spec over the
// given sender.
func SendWhatsAppMessage(sender *WhatsAppSender) (tool.Spec, error) {
	schema, err := tool.SchemaFor[SendWhatsAppInput]()
	if err != nil {
		return tool.Spec{}, fmt.Errorf("send_whatsapp_message schema: %w", err)
	}

	return tool.Spec{
		Name:        "send_whatsapp_message",
		Description: "Send a text message via WhatsApp. Requires a phone number in international format and the message content.",
		InputSchema: schema,
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in SendWhatsAppInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			if in.PhoneNumber == "" || in.Message == "" {
				return "", errors.New("phone number and message content are required")
			}
			if err := sender.SendText(ctx, in.PhoneNumber, in.Message); err != nil {
				return "", err
			}
			return fmt.Sprintf("WhatsApp message sent successfully to %s", in.PhoneNumber), nil
		},
	}, nil
}
