package service

import (
	"bytes"
	"codehub_backend/internal/config"
	"codehub_backend/internal/model"
	"codehub_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LLMProvider 外部大模型；Chat 的 history 按时间正序，最后一条为本轮用户消息
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
	Chat(ctx context.Context, system string, history []AIChatMessage) (string, error)
}

// NewLLMProvider 根据 ai.provider 选择实现
func NewLLMProvider(ctx context.Context, cfg config.AIConfig) (LLMProvider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

func observeExternalCall(service string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	monitoring.ExternalCallDuration.WithLabelValues(service, status).Observe(time.Since(start).Seconds())
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []AIChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIProvider 兼容 /chat/completions 的服务
type OpenAIProvider struct {
	config config.AIConfig
	client *http.Client
}

func NewOpenAIProvider(cfg config.AIConfig) *OpenAIProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{config: cfg, client: &http.Client{Timeout: timeout}}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	return p.Chat(ctx, system, []AIChatMessage{{Role: model.ChatRoleUser, Content: prompt}})
}

func (p *OpenAIProvider) Chat(ctx context.Context, system string, history []AIChatMessage) (out string, err error) {
	defer func(start time.Time) { observeExternalCall("openai", start, err) }(time.Now())

	messages := make([]AIChatMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, AIChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, history...)

	jsonData, err := json.Marshal(ChatCompletionRequest{Model: p.config.Model, Messages: messages})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("AI API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("AI returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

type GeminiProvider struct {
	client    *genai.Client
	modelName string
}

func NewGeminiProvider(ctx context.Context, cfg config.AIConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires ai.api_key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}
	return &GeminiProvider{client: client, modelName: name}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) generativeModel(system string) *genai.GenerativeModel {
	gm := p.client.GenerativeModel(p.modelName)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return gm
}

func (p *GeminiProvider) Complete(ctx context.Context, system, prompt string) (out string, err error) {
	defer func(start time.Time) { observeExternalCall("gemini", start, err) }(time.Now())

	resp, err := p.generativeModel(system).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return geminiText(resp)
}

// Chat gemini 的助手角色名为 model
func (p *GeminiProvider) Chat(ctx context.Context, system string, history []AIChatMessage) (out string, err error) {
	defer func(start time.Time) { observeExternalCall("gemini", start, err) }(time.Now())

	if len(history) == 0 {
		return "", fmt.Errorf("gemini chat requires at least one message")
	}
	cs := p.generativeModel(system).StartChat()
	for _, m := range history[:len(history)-1] {
		role := "user"
		if m.Role == model.ChatRoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	resp, err := cs.SendMessage(ctx, genai.Text(history[len(history)-1].Content))
	if err != nil {
		return "", fmt.Errorf("gemini send message: %w", err)
	}
	return geminiText(resp)
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no content")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return sb.String(), nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
