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

// OllamaProvider supports local, free generation via Ollama.
type OllamaProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(alias string) *OllamaProvider {
	baseURL := strings.TrimSpace(os.Getenv("CASEFLOW_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		alias:   alias,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   resolveOllamaModel(alias),
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nCase text:\n" + strings.Join(req.Context, "\n\n")
	}
	payload, _ := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode ollama response: %w", err)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return GenerateResponse{}, info, fmt.Errorf("ollama returned empty response")
	}
	return GenerateResponse{Text: parsed.Response}, info, nil
}

func resolveOllamaModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		key := "CASEFLOW_OLLAMA_MODEL_" + sanitizeEnvToken(alias)
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		// Allow direct model in provider list, e.g. ollama:llama3.1
		if strings.Contains(alias, "-") || strings.Contains(alias, "/") || strings.Contains(alias, ".") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv("CASEFLOW_OLLAMA_MODEL")); v != "" {
		return v
	}
	return "llama3.1"
}

func sanitizeEnvToken(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
