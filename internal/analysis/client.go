// Package analysis submits RFP payloads to the external analysis workflow (an n8n webhook)
// and hands back whatever it returned.
package analysis

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

// ErrUpstream marks failures of the analysis workflow itself, as opposed to local errors.
var ErrUpstream = errors.New("analysis workflow failed")

// UpstreamError carries the workflow's status and body so callers can relay them.
type UpstreamError struct {
	Status  int
	Details string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("analysis workflow failed: %s", e.Details)
	}
	return fmt.Sprintf("analysis workflow returned status %d: %s", e.Status, e.Details)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Request is the payload the workflow expects.
type Request struct {
	RfpID        string  `json:"rfp_id"`
	BuyerName    string  `json:"buyer_name"`
	Quantity     float64 `json:"quantity"`
	BasePrice    float64 `json:"base_price"`
	Requirements string  `json:"requirements"`
}

// Result is the workflow response. Records holds one entry per returned object; a single
// object response yields one record.
type Result struct {
	Raw     json.RawMessage
	Records []map[string]interface{}
}

// Analyzer runs an RFP through the analysis workflow.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, req Request) (*Result, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// N8NClient posts requests to an n8n webhook.
type N8NClient struct {
	WebhookURL string
	HTTPClient *http.Client
}

const maxErrorBody = 4 << 10

func NewN8NClient(webhookURL string, timeout time.Duration) *N8NClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &N8NClient{
		WebhookURL: webhookURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *N8NClient) Analyze(ctx context.Context, in Request) (*Result, error) {
	if c.WebhookURL == "" {
		return nil, &UpstreamError{Details: "N8N_ANALYZE_URL is not configured"}
	}
	jsonData, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Details: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		details := strings.TrimSpace(string(body))
		if details == "" {
			details = http.StatusText(resp.StatusCode)
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Details: details}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Details: "read response: " + err.Error()}
	}
	res, err := DecodeResult(body)
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Details: err.Error()}
	}
	return res, nil
}

// DecodeResult accepts a JSON object or an array of objects. Workflows that wrap their JSON in
// markdown fences or chatter are tolerated by taking the first balanced object.
func DecodeResult(body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response")
	}

	if res, ok := decodeJSON(trimmed); ok {
		return res, nil
	}

	cleaned := strings.TrimSpace(string(trimmed))
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	if obj, ok := extractFirstJSONObject(cleaned); ok {
		if res, ok := decodeJSON([]byte(obj)); ok {
			return res, nil
		}
	}
	return nil, errors.New("response is not a JSON object or array")
}

func decodeJSON(b []byte) (*Result, bool) {
	switch b[0] {
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil, false
		}
		return &Result{Raw: json.RawMessage(b), Records: []map[string]interface{}{obj}}, true
	case '[':
		var items []interface{}
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, false
		}
		res := &Result{Raw: json.RawMessage(b)}
		for _, it := range items {
			if obj, ok := it.(map[string]interface{}); ok {
				res.Records = append(res.Records, obj)
			}
		}
		return res, true
	}
	return nil, false
}

// extractFirstJSONObject finds the first outermost balanced {...}
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
