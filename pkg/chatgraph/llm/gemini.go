package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiClient adapts the Gemini API to the Client interface.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	contents, config, err := c.buildRequest(req)
	if err != nil {
		return nil, NewError("complete", "gemini", err, false)
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, NewError("complete", "gemini", err, geminiRetryable(err))
	}

	resp := &CompletionResponse{
		Content:      result.Text(),
		Model:        req.Model,
		FinishReason: "stop",
		Duration:     time.Since(start),
	}
	if result.UsageMetadata != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}
	for _, fc := range result.FunctionCalls() {
		call, err := convertGeminiCall(fc)
		if err != nil {
			return nil, NewError("complete", "gemini", err, false)
		}
		resp.ToolCalls = append(resp.ToolCalls, call)
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = "tool_calls"
	}
	return resp, nil
}

// Stream implements Client.
func (c *GeminiClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	contents, config, err := c.buildRequest(req)
	if err != nil {
		return nil, NewError("stream", "gemini", err, false)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)

		var toolCalls []ToolCall
		var usage *TokenUsage

		for result, err := range c.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if err != nil {
				select {
				case ch <- StreamChunk{Error: NewError("stream", "gemini", err, geminiRetryable(err))}:
				case <-ctx.Done():
				}
				return
			}

			for _, fc := range result.FunctionCalls() {
				call, convErr := convertGeminiCall(fc)
				if convErr != nil {
					select {
					case ch <- StreamChunk{Error: NewError("stream", "gemini", convErr, false)}:
					case <-ctx.Done():
					}
					return
				}
				toolCalls = append(toolCalls, call)
			}
			if result.UsageMetadata != nil {
				usage = &TokenUsage{
					InputTokens:  int(result.UsageMetadata.PromptTokenCount),
					OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
					TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
				}
			}

			if text := result.Text(); text != "" {
				select {
				case ch <- StreamChunk{Content: text}:
				case <-ctx.Done():
					return
				}
			}
		}

		select {
		case ch <- StreamChunk{Done: true, ToolCalls: toolCalls, Usage: usage}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

// buildRequest converts a request into Gemini contents and config.
func (c *GeminiClient) buildRequest(req CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, t := range req.Tools {
			var schema map[string]any
			if len(t.Parameters) > 0 {
				if err := json.Unmarshal(t.Parameters, &schema); err != nil {
					return nil, nil, fmt.Errorf("tool %q: invalid parameter schema: %w", t.Name, err)
				}
			}
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: schema,
			})
		}
		config.Tools = []*genai.Tool{tool}
	}

	// Gemini function responses must carry the tool name, which tool-role
	// messages reference by call ID only.
	callNames := make(map[string]string)
	var contents []*genai.Content
	for _, msg := range req.Messages {
		content, err := convertGeminiMessage(msg, callNames)
		if err != nil {
			return nil, nil, err
		}
		if content != nil {
			contents = append(contents, content)
		}
	}
	return contents, config, nil
}

func convertGeminiMessage(msg Message, callNames map[string]string) (*genai.Content, error) {
	switch msg.Role {
	case RoleUser:
		return genai.NewContentFromText(msg.Content, genai.RoleUser), nil
	case RoleSystem:
		// System text is carried in the request config, not the history.
		return nil, nil
	case RoleAssistant:
		content := &genai.Content{Role: string(genai.RoleModel)}
		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
			var args map[string]any
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					return nil, fmt.Errorf("tool call %s: invalid arguments: %w", tc.ID, err)
				}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
			})
		}
		return content, nil
	case RoleTool:
		name, ok := callNames[msg.ToolCallID]
		if !ok {
			return nil, fmt.Errorf("tool message references unknown call %q", msg.ToolCallID)
		}
		return &genai.Content{
			Role: string(genai.RoleUser),
			Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     name,
					Response: map[string]any{"output": msg.Content},
				},
			}},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported message role %q", msg.Role)
	}
}

func convertGeminiCall(fc *genai.FunctionCall) (ToolCall, error) {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		return ToolCall{}, fmt.Errorf("marshal function call args: %w", err)
	}
	id := fc.ID
	if id == "" {
		// Gemini omits call IDs; the conversation log needs stable ones
		id = "call_" + uuid.NewString()
	}
	return ToolCall{ID: id, Name: fc.Name, Arguments: args}, nil
}

// geminiRetryable classifies SDK errors by HTTP status code.
func geminiRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	case errors.As(err, &apiErr):
		code = apiErr.Code
	default:
		return true
	}
	return code == 408 || code == 429 || code >= 500
}
