package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/ragerr"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOllamaLLM(t *testing.T) {
	t.Run("CompleteWithOptions merges defaults and requests json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)

			var req ollamaGenerateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama3.1", req.Model)
			assert.False(t, req.Stream)
			assert.Equal(t, "json", req.Format)
			assert.InDelta(t, 0.0, req.Options["temperature"], 1e-6)
			assert.EqualValues(t, 512, req.Options["num_predict"])

			json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: `{"score": 1}`, Done: true})
		}))
		defer server.Close()

		l := NewOllamaLLM(
			WithOllamaBaseURL(server.URL),
			WithOllamaModel("llama3.1"),
			WithOllamaTemperature(0.7),
			WithOllamaNumPredict(512),
			WithOllamaLogger(quietLogger),
		)
		out, err := l.CompleteWithOptions(context.Background(), "judge this", &GenerateOptions{Temperature: Float32(0), JSON: true})
		require.NoError(t, err)
		assert.Equal(t, `{"score": 1}`, out)
	})

	t.Run("Chat", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/chat", r.URL.Path)
			var req ollamaChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "system", req.Messages[0].Role)
			json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: "hello"}, Done: true})
		}))
		defer server.Close()

		l := NewOllamaLLM(WithOllamaBaseURL(server.URL), WithOllamaLogger(quietLogger))
		out, err := l.Chat(context.Background(), []ChatMessage{NewSystemMessage("be brief"), NewUserMessage("hi")})
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})

	t.Run("Stream yields tokens in order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enc := json.NewEncoder(w)
			enc.Encode(ollamaGenerateResponse{Response: "Hel"})
			enc.Encode(ollamaGenerateResponse{Response: "lo"})
			enc.Encode(ollamaGenerateResponse{Done: true})
		}))
		defer server.Close()

		l := NewOllamaLLM(WithOllamaBaseURL(server.URL), WithOllamaLogger(quietLogger))
		ch, err := l.Stream(context.Background(), "hi")
		require.NoError(t, err)

		var got []string
		for tok := range ch {
			got = append(got, tok)
		}
		assert.Equal(t, []string{"Hel", "lo"}, got)
	})

	t.Run("non-200 maps to upstream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model not found"}`))
		}))
		defer server.Close()

		l := NewOllamaLLM(WithOllamaBaseURL(server.URL), WithOllamaLogger(quietLogger))
		_, err := l.Complete(context.Background(), "hi")
		require.Error(t, err)
		assert.Equal(t, ragerr.KindNotFound, ragerr.KindOf(err))
		assert.Contains(t, err.Error(), "model not found")
	})
}

func TestOpenAILLM(t *testing.T) {
	t.Run("json response format and temperature", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "judge-model", req["model"])
			assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
			assert.InDelta(t, 1.0, req["temperature"], 1e-6)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"verdict\":\"yes\"}"},"finish_reason":"stop"}]}`))
		}))
		defer server.Close()

		l := NewOpenAILLM(server.URL, "judge-model", "key", WithOpenAILogger(quietLogger))
		assert.Equal(t, "judge-model", l.ModelID())

		out, err := l.CompleteWithOptions(context.Background(), "judge", &GenerateOptions{Temperature: Float32(1), JSON: true})
		require.NoError(t, err)
		assert.Equal(t, `{"verdict":"yes"}`, out)
	})

	t.Run("api error maps to upstream with status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"message":"backend down","type":"server_error"}}`))
		}))
		defer server.Close()

		l := NewOpenAILLM(server.URL, "m", "key", WithOpenAILogger(quietLogger))
		_, err := l.Complete(context.Background(), "hi")
		require.Error(t, err)
		assert.ErrorIs(t, err, ragerr.ErrUpstream)

		var rerr *ragerr.Error
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, http.StatusBadGateway, rerr.Status)
	})
}

func TestStripThink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "plain answer", "plain answer"},
		{"single preface", "<think>reasoning</think>\n\nThe answer.", "The answer."},
		{"last closing tag wins", "<think>a</think>b<think>c</think> final", "final"},
		{"unterminated preface is kept", "<think>still thinking", "<think>still thinking"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThink(tt.in))
		})
	}
}

func TestPostProcessorRegistry(t *testing.T) {
	r := NewPostProcessorRegistry()
	assert.Equal(t, "x", r.For("deepseek-r1:14b")("<think>y</think>x"))
	assert.Equal(t, "<think>y</think>x", r.For("llama3.1")("<think>y</think>x"))

	r.Register("qwen3:0.6b", Identity)
	assert.Equal(t, "<think>y</think>x", r.For("qwen3:0.6b")("<think>y</think>x"))
	assert.Equal(t, "x", r.For("qwen3:8b")("<think>y</think>x"))
}

func TestMockLLMScript(t *testing.T) {
	m := NewScriptedMockLLM("one", "two")
	m.Response = "fallback"
	ctx := context.Background()

	a, _ := m.Complete(ctx, "p1")
	b, _ := CompleteWith(ctx, m, "p2", &GenerateOptions{JSON: true})
	c, _ := m.Complete(ctx, "p3")

	assert.Equal(t, []string{"one", "two", "fallback"}, []string{a, b, c})
	assert.Equal(t, []string{"p1", "p2", "p3"}, m.Prompts)
	assert.True(t, m.Options[1].JSON)
	assert.Equal(t, "mock-model", ModelIDOf(m))
}
