package ontology

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"caseflow/internal/models"
)

// HTTPResolver talks to an external ontology service.
type HTTPResolver struct {
	baseURL   string
	namespace string
	client    *http.Client
}

func NewHTTPResolver(baseURL, namespace string) *HTTPResolver {
	return &HTTPResolver{
		baseURL:   strings.TrimRight(baseURL, "/"),
		namespace: namespace,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPResolver) ResolveClass(ctx context.Context, label string, conceptType models.ConceptType) (Class, bool, error) {
	u := fmt.Sprintf("%s/classes/resolve?label=%s&type=%s",
		h.baseURL, url.QueryEscape(label), url.QueryEscape(string(conceptType)))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Class{}, false, fmt.Errorf("ontology resolve request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Class{}, false, nil
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return Class{}, false, fmt.Errorf("ontology resolve error %d: %s", resp.StatusCode, string(body))
	}
	var c Class
	if err := json.Unmarshal(body, &c); err != nil {
		return Class{}, false, fmt.Errorf("decode resolve response: %w", err)
	}
	if c.URI == "" {
		return Class{}, false, nil
	}
	return c, true, nil
}

func (h *HTTPResolver) CreateClass(ctx context.Context, label string, conceptType models.ConceptType, definition string) (Class, error) {
	c := Class{
		URI:         ClassURI(h.namespace, label, conceptType),
		Label:       label,
		ConceptType: string(conceptType),
		Definition:  definition,
	}
	payload, _ := json.Marshal(c)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPut, h.baseURL+"/classes/"+url.PathEscape(Slug(label)), bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Class{}, fmt.Errorf("ontology create request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	// 409 means the class already exists under the same URI, which is fine.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		return Class{}, fmt.Errorf("ontology create error %d: %s", resp.StatusCode, string(body))
	}
	return c, nil
}
