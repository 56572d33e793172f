package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCleanResponsePlain(t *testing.T) {
	got := CleanResponse("Heavenly Father, we thank You. Amen.")
	if got != "Heavenly Father, we thank You. Amen." {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestCleanResponseCodeFence(t *testing.T) {
	got := CleanResponse("```\nHeavenly Father, Amen.\n```")
	if got != "Heavenly Father, Amen." {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestCleanResponseLabeledFence(t *testing.T) {
	got := CleanResponse("```text\nHeavenly Father, Amen.\n```")
	if got != "Heavenly Father, Amen." {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestCleanResponseSurroundingQuotes(t *testing.T) {
	got := CleanResponse(`"Heavenly Father, Amen."`)
	if got != "Heavenly Father, Amen." {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestCleanResponseKeepsInnerQuotes(t *testing.T) {
	text := `He said "peace" to the storm.`
	if got := CleanResponse(text); got != text {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", KindTransient},
		{"server error", http.StatusInternalServerError, "oops", KindTransient},
		{"bad gateway", http.StatusBadGateway, "oops", KindTransient},
		{"policy refusal", http.StatusBadRequest, `{"error":{"code":"content_policy_violation"}}`, KindPolicy},
		{"content filter", http.StatusBadRequest, `{"error":{"code":"content_filter"}}`, KindPolicy},
		{"plain bad request", http.StatusBadRequest, "malformed", KindOther},
		{"unauthorized", http.StatusUnauthorized, "bad key", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus("test", tt.status, []byte(tt.body))
			var le *Error
			if !errors.As(err, &le) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if le.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, le.Kind)
			}
		})
	}
}

func TestIsTransientAndIsPolicy(t *testing.T) {
	transient := &Error{Kind: KindTransient, Err: errors.New("x")}
	policy := &Error{Kind: KindPolicy, Err: errors.New("x")}
	if !IsTransient(transient) || IsTransient(policy) {
		t.Error("IsTransient misclassified")
	}
	if !IsPolicy(policy) || IsPolicy(transient) {
		t.Error("IsPolicy misclassified")
	}
	if IsTransient(errors.New("plain")) || IsPolicy(errors.New("plain")) {
		t.Error("plain errors should not classify")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var gotSystem, gotUser string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		decodeJSONBody(t, r, &body)
		for _, m := range body.Messages {
			switch m.Role {
			case "system":
				gotSystem = m.Content
			case "user":
				gotUser = m.Content
			}
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Heavenly Father, Amen."}}]}`))
	}))
	defer server.Close()

	p := &OpenAIProvider{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: server.URL, client: server.Client()}
	text, err := p.Generate(context.Background(), "you are a prayer writer", "write a prayer", 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Heavenly Father, Amen." {
		t.Errorf("unexpected text: %q", text)
	}
	if gotSystem != "you are a prayer writer" || gotUser != "write a prayer" {
		t.Errorf("prompts not forwarded: system=%q user=%q", gotSystem, gotUser)
	}
}

func TestOpenAIGenerateRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := &OpenAIProvider{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: server.URL, client: server.Client()}
	_, err := p.Generate(context.Background(), "s", "u", 500)
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestOpenAIGeneratePolicyRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"content_policy_violation"}}`))
	}))
	defer server.Close()

	p := &OpenAIProvider{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: server.URL, client: server.Client()}
	_, err := p.Generate(context.Background(), "s", "u", 500)
	if !IsPolicy(err) {
		t.Errorf("expected policy error, got %v", err)
	}
}

func TestOpenAIUnconfigured(t *testing.T) {
	p := &OpenAIProvider{Model: "gpt-4o-mini"}
	if p.IsConfigured() {
		t.Error("expected unconfigured without API key")
	}
}

func decodeJSONBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
}
