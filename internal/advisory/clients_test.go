package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tbourn/go-triage-backend/internal/triage"
)

const wireClassification = `{"level":"self_care","headline":"Home care is fine","urgency":"Monitor at home.","suggestions":["Rest.","Hydrate.","Track changes."],"disclaimer":"General guidance only."}`

func TestOpenAIClient_TriageParsesOutput(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Temperature != triageTemperature || req.MaxOutputTokens != triageMaxTokens {
			t.Errorf("generation settings = %v/%v", req.Temperature, req.MaxOutputTokens)
		}
		if !strings.Contains(req.Input, "Patient intake (JSON):") {
			t.Errorf("input missing intake restatement")
		}

		resp := map[string]any{
			"output": []map[string]any{{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{{
					"type": "output_text",
					"text": wireClassification,
				}},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "")
	c.baseURL = srv.URL

	cls, err := c.Triage(context.Background(), triage.Intake{Symptoms: []string{"sore throat"}})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if cls.Level != triage.LevelSelfCare {
		t.Fatalf("level = %q", cls.Level)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestOpenAIClient_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "")
	c.baseURL = srv.URL

	if _, err := c.Triage(context.Background(), triage.Intake{}); err == nil {
		t.Fatal("err = nil, want error on non-2xx status")
	}
}

func TestOpenAIClient_UnparsableOutputIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"output": []map[string]any{{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{{
					"type": "output_text",
					"text": "I think you should rest.",
				}},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "")
	c.baseURL = srv.URL

	if _, err := c.Triage(context.Background(), triage.Intake{}); err == nil {
		t.Fatal("err = nil, want shape-check failure")
	}
}

func TestGeminiClient_TriageParsesCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "g-test" {
			t.Errorf("key query = %q", r.URL.Query().Get("key"))
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SystemInstruction == nil || len(req.SystemInstruction.Parts) == 0 {
			t.Errorf("missing system instruction")
		}

		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": wireClassification}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewGeminiClient("g-test", srv.URL)

	cls, err := c.Triage(context.Background(), triage.Intake{})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if cls.Headline != "Home care is fine" {
		t.Fatalf("headline = %q", cls.Headline)
	}
}

func TestGeminiClient_ChatMapsHistoryRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if len(req.Contents) != 3 {
			t.Errorf("contents = %d, want 3", len(req.Contents))
		} else if req.Contents[1].Role != "model" {
			t.Errorf("assistant turn role = %q, want model", req.Contents[1].Role)
		}

		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "Rest and monitor."}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewGeminiClient("g-test", srv.URL)

	reply, err := c.Chat(context.Background(), "still coughing", []Turn{
		{Role: "user", Content: "I have a cough"},
		{Role: "assistant", Content: "How long?"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Rest and monitor." {
		t.Fatalf("reply = %q", reply)
	}
}

func TestNewProvider_Selection(t *testing.T) {
	if p := NewProvider(Config{}); p != nil {
		t.Fatalf("disabled selection => provider = %v, want nil", p)
	}
	if p := NewProvider(Config{Selection: SelectionOpenAI}); p != nil {
		t.Fatal("openai selected without key, want nil")
	}
	if p := NewProvider(Config{Selection: SelectionOpenAI, OpenAIKey: "k"}); p == nil || p.Name() != "openai" {
		t.Fatalf("openai provider = %v", p)
	}
	if p := NewProvider(Config{Selection: SelectionGemini, GeminiKey: "k"}); p == nil || p.Name() != "gemini" {
		t.Fatalf("gemini provider = %v", p)
	}
}
