package tools_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
	"github.com/assistkit/chatgraph/pkg/chatgraph/tool"
	"github.com/assistkit/chatgraph/pkg/chatgraph/tools"
)

func TestNewWhatsAppSender_RequiresConfig(t *testing.T) {
	_, err := tools.NewWhatsAppSender(tools.WhatsAppConfig{BaseURL: "http://api", Instance: "main"})
	assert.Error(t, err)

	_, err = tools.NewWhatsAppSender(tools.WhatsAppConfig{BaseURL: "http://api", Instance: "main", APIKey: "k"})
	assert.NoError(t, err)
}

func TestWhatsAppSender_SendText(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sender, err := tools.NewWhatsAppSender(tools.WhatsAppConfig{
		BaseURL:  server.URL,
		Instance: "support",
		APIKey:   "secret",
	})
	require.NoError(t, err)

	require.NoError(t, sender.SendText(context.Background(), "5511999999999", "hello"))

	assert.Equal(t, "/message/sendText/support", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "5511999999999", gotPayload["number"])
	assert.Equal(t, "hello", gotPayload["text"])
	assert.Equal(t, float64(1000), gotPayload["delay"])
}

func TestWhatsAppSender_NonCreatedStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "instance not connected", http.StatusBadRequest)
	}))
	defer server.Close()

	sender, err := tools.NewWhatsAppSender(tools.WhatsAppConfig{
		BaseURL:  server.URL,
		Instance: "support",
		APIKey:   "secret",
	})
	require.NoError(t, err)

	err = sender.SendText(context.Background(), "5511999999999", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "instance not connected")
}

func TestSendWhatsAppMessage_Tool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sender, err := tools.NewWhatsAppSender(tools.WhatsAppConfig{
		BaseURL:  server.URL,
		Instance: "support",
		APIKey:   "secret",
	})
	require.NoError(t, err)

	spec, err := tools.SendWhatsAppMessage(sender)
	require.NoError(t, err)

	r := tool.NewRegistry()
	require.NoError(t, r.Register(spec))

	res := r.Execute(context.Background(), llm.ToolCall{
		ID:        "call_1",
		Name:      "send_whatsapp_message",
		Arguments: []byte(`{"phone_number":"5511999999999","message":"order shipped"}`),
	})

	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "sent successfully to 5511999999999")
}

func TestSendWhatsAppMessage_EmptyFieldsRejected(t *testing.T) {
	sender, err := tools.NewWhatsAppSender(tools.WhatsAppConfig{
		BaseURL:  "http://unused",
		Instance: "support",
		APIKey:   "secret",
	})
	require.NoError(t, err)

	spec, err := tools.SendWhatsAppMessage(sender)
	require.NoError(t, err)

	r := tool.NewRegistry()
	require.NoError(t, r.Register(spec))

	res := r.Execute(context.Background(), llm.ToolCall{
		ID:        "call_1",
		Name:      "send_whatsapp_message",
		Arguments: []byte(`{"phone_number":"","message":""}`),
	})

	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "required")
}
