package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAIProvider uses the standard OpenAI REST API when a key is configured.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	model := strings.TrimSpace(os.Getenv("CASEFLOW_OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  resolveOpenAIKey(keyName),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: o.model, Key: o.keyName}
	if o.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nCase text:\n" + strings.Join(req.Context, "\n\n")
	}
	payload, _ := json.Marshal(map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a professional-ethics case analyst. Respond with strict JSON only."},
			{"role": "user", "content": prompt},
		},
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("openai generate request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, fmt.Errorf("openai generate error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode generate response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("openai returned empty choices")
	}
	return GenerateResponse{Text: parsed.Choices[0].Message.Content}, info, nil
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		if k := os.Getenv("CASEFLOW_OPENAI_KEY_" + strings.ToUpper(alias)); k != "" {
			return k
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}
