// OpenAI Responses API client.
//
// The client is a thin REST wrapper: it sends a prompt with fixed generation
// settings and extracts assistant output text. Transport errors, non-2xx
// statuses, and malformed payloads all surface as errors so the orchestrator
// can fall back.
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

// defaultOpenAIURL is the Responses API endpoint.
const defaultOpenAIURL = "https://api.openai.com/v1/responses"

// defaultOpenAIModel is used when no model is configured.
const defaultOpenAIModel = "gpt-5"

// OpenAIClient talks to the OpenAI Responses API.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client
}

// NewOpenAIClient returns a client for the given API key and model.
// An empty model selects the default.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultOpenAIURL,
		httpc:   &http.Client{},
	}
}

// Name implements Provider.
func (c *OpenAIClient) Name() string { return string(SelectionOpenAI) }

// openAIRequest is the Responses API request body.
type openAIRequest struct {
	Model           string           `json:"model"`
	Instructions    string           `json:"instructions"`
	Input           string           `json:"input"`
	Temperature     float64          `json:"temperature"`
	MaxOutputTokens int              `json:"max_output_tokens"`
	Text            openAITextFormat `json:"text"`
}

type openAITextFormat struct {
	Format struct {
		Type string `json:"type"`
	} `json:"format"`
}

// openAIResponse is the subset of the Responses API payload we consume.
type openAIResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Triage implements Provider.
func (c *OpenAIClient) Triage(ctx context.Context, in triage.Intake) (*triage.Classification, error) {
	text, err := c.generate(ctx, triageInstructions, BuildTriagePrompt(in), triageTemperature, triageMaxTokens)
	if err != nil {
		return nil, err
	}
	cls, ok := ParseClassification(text)
	if !ok {
		return nil, fmt.Errorf("openai: output failed shape check")
	}
	return cls, nil
}

// Chat implements Provider. History is restated as a plain transcript,
// bounded to the most recent turns.
func (c *OpenAIClient) Chat(ctx context.Context, message string, history []Turn) (string, error) {
	var b strings.Builder
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, t := range history[start:] {
		if t.Role == "assistant" {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")

	text, err := c.generate(ctx, chatInstructions, b.String(), chatTemperature, chatMaxTokens)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("openai: empty reply")
	}
	return text, nil
}

// generate performs one Responses API call and returns the joined assistant
// output text.
func (c *OpenAIClient) generate(ctx context.Context, instructions, input string, temperature float64, maxTokens int) (string, error) {
	reqBody := openAIRequest{
		Model:           c.model,
		Instructions:    instructions,
		Input:           input,
		Temperature:     temperature,
		MaxOutputTokens: maxTokens,
	}
	reqBody.Text.Format.Type = "text"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var data openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "openai request failed"
		if data.Error != nil && data.Error.Message != "" {
			msg = data.Error.Message
		}
		return "", fmt.Errorf("openai: %s (status %d)", msg, resp.StatusCode)
	}

	var parts []string
	for _, item := range data.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" && content.Text != "" {
				parts = append(parts, content.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
