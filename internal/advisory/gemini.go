// Gemini generateContent client. Wire types follow the REST schema directly;
// no SDK.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tbourn/go-triage-backend/internal/triage"
)

// defaultGeminiEndpoint is used when no endpoint override is configured.
const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

// GeminiClient talks to the Gemini generateContent API.
type GeminiClient struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
}

// NewGeminiClient returns a client for the given API key. An empty endpoint
// selects the default model endpoint.
func NewGeminiClient(apiKey, endpoint string) *GeminiClient {
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	return &GeminiClient{apiKey: apiKey, endpoint: endpoint, httpc: &http.Client{}}
}

// Name implements Provider.
func (c *GeminiClient) Name() string { return string(SelectionGemini) }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Triage implements Provider.
func (c *GeminiClient) Triage(ctx context.Context, in triage.Intake) (*triage.Classification, error) {
	req := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     triageTemperature,
			MaxOutputTokens: triageMaxTokens,
		},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: triageInstructions + " Return valid JSON only."}},
		},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: BuildTriagePrompt(in)}}},
		},
	}
	text, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	cls, ok := ParseClassification(text)
	if !ok {
		return nil, fmt.Errorf("gemini: output failed shape check")
	}
	return cls, nil
}

// Chat implements Provider. History maps onto Gemini roles ("model" for
// assistant turns), bounded to the most recent turns.
func (c *GeminiClient) Chat(ctx context.Context, message string, history []Turn) (string, error) {
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	contents := make([]geminiContent, 0, len(history)-start+1)
	for _, t := range history[start:] {
		role := "user"
		if t.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: t.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: message}}})

	req := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     chatTemperature,
			MaxOutputTokens: chatMaxTokens,
		},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: chatInstructions}},
		},
		Contents: contents,
	}
	text, err := c.generate(ctx, req)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("gemini: empty reply")
	}
	return text, nil
}

// generate performs one generateContent call and joins candidate part text.
func (c *GeminiClient) generate(ctx context.Context, body geminiRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var data geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "gemini request failed"
		if data.Error != nil && data.Error.Message != "" {
			msg = data.Error.Message
		}
		return "", fmt.Errorf("gemini: %s (status %d)", msg, resp.StatusCode)
	}
	if len(data.Candidates) == 0 {
		return "", nil
	}

	var parts []string
	for _, p := range data.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
