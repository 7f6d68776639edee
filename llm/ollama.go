package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aqua777/go-ragchat/ragerr"
)

const (
	// OllamaDefaultURL is the default Ollama API endpoint.
	OllamaDefaultURL = "http://localhost:11434"
	// OllamaDefaultModel is used when no model is configured.
	OllamaDefaultModel = "llama3.1"
)

// OllamaLLM implements the LLM interface for Ollama local models.
type OllamaLLM struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	defaults   GenerateOptions
	stop       []string
}

// OllamaOption configures an OllamaLLM.
type OllamaOption func(*OllamaLLM)

// WithOllamaBaseURL sets the base URL.
func WithOllamaBaseURL(baseURL string) OllamaOption {
	return func(o *OllamaLLM) {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithOllamaModel sets the model.
func WithOllamaModel(model string) OllamaOption {
	return func(o *OllamaLLM) {
		o.model = model
	}
}

// WithOllamaHTTPClient sets a custom HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(o *OllamaLLM) {
		o.httpClient = client
	}
}

// WithOllamaLogger sets the logger.
func WithOllamaLogger(logger *slog.Logger) OllamaOption {
	return func(o *OllamaLLM) {
		o.logger = logger
	}
}

// WithOllamaTemperature sets the temperature.
func WithOllamaTemperature(temp float32) OllamaOption {
	return func(o *OllamaLLM) {
		o.defaults.Temperature = &temp
	}
}

// WithOllamaTopP sets the top_p value.
func WithOllamaTopP(topP float32) OllamaOption {
	return func(o *OllamaLLM) {
		o.defaults.TopP = &topP
	}
}

// WithOllamaTopK sets the top_k value.
func WithOllamaTopK(topK int) OllamaOption {
	return func(o *OllamaLLM) {
		o.defaults.TopK = &topK
	}
}

// WithOllamaNumPredict sets the max tokens to generate.
func WithOllamaNumPredict(numPredict int) OllamaOption {
	return func(o *OllamaLLM) {
		o.defaults.NumPredict = &numPredict
	}
}

// WithOllamaNumCtx sets the context window size.
func WithOllamaNumCtx(numCtx int) OllamaOption {
	return func(o *OllamaLLM) {
		o.defaults.NumCtx = &numCtx
	}
}

// WithOllamaSeed sets the random seed.
func WithOllamaSeed(seed int) OllamaOption {
	return func(o *OllamaLLM) {
		o.defaults.Seed = &seed
	}
}

// WithOllamaStop sets the stop sequences.
func WithOllamaStop(stop []string) OllamaOption {
	return func(o *OllamaLLM) {
		o.stop = stop
	}
}

// NewOllamaLLM creates a new Ollama LLM client.
func NewOllamaLLM(opts ...OllamaOption) *OllamaLLM {
	baseURL := os.Getenv("OLLAMA_API_BASE")
	if baseURL == "" {
		baseURL = OllamaDefaultURL
	}

	o := &OllamaLLM{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      OllamaDefaultModel,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ModelID returns the model identifier.
func (o *OllamaLLM) ModelID() string {
	return o.model
}

// Complete generates a completion for a given prompt.
func (o *OllamaLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return o.CompleteWithOptions(ctx, prompt, nil)
}

// CompleteWithOptions generates a completion with per-call options.
func (o *OllamaLLM) CompleteWithOptions(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	o.logger.Info("Complete called", "model", o.model, "prompt_len", len(prompt))

	reqBody := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: o.buildOptions(opts),
	}
	if opts != nil && opts.JSON {
		reqBody.Format = "json"
	}

	var result ollamaGenerateResponse
	if err := o.post(ctx, "/api/generate", reqBody, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

// Chat generates a response for a list of chat messages.
func (o *OllamaLLM) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	o.logger.Info("Chat called", "model", o.model, "message_count", len(messages))

	reqBody := ollamaChatRequest{
		Model:    o.model,
		Messages: convertMessages(messages),
		Stream:   false,
		Options:  o.buildOptions(nil),
	}

	var result ollamaChatResponse
	if err := o.post(ctx, "/api/chat", reqBody, &result); err != nil {
		return "", err
	}
	return result.Message.Content, nil
}

// Stream generates a streaming completion for a given prompt.
func (o *OllamaLLM) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	o.logger.Info("Stream called", "model", o.model, "prompt_len", len(prompt))

	reqBody := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  true,
		Options: o.buildOptions(nil),
	}

	resp, err := o.send(ctx, "/api/generate", reqBody)
	if err != nil {
		return nil, err
	}

	tokenChan := make(chan string)

	go func() {
		defer close(tokenChan)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				o.logger.Error("Stream error", "model", o.model, "error", chunk.Error)
				return
			}
			if chunk.Response != "" {
				select {
				case tokenChan <- chunk.Response:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()

	return tokenChan, nil
}

// Metadata returns information about the model's capabilities.
func (o *OllamaLLM) Metadata() LLMMetadata {
	meta := LLMMetadata{ModelName: o.model, ContextWindow: 4096, NumOutputTokens: 2048}
	if o.defaults.NumCtx != nil {
		meta.ContextWindow = *o.defaults.NumCtx
	}
	if o.defaults.NumPredict != nil {
		meta.NumOutputTokens = *o.defaults.NumPredict
	}
	return meta
}

// buildOptions merges client defaults with per-call overrides.
func (o *OllamaLLM) buildOptions(override *GenerateOptions) map[string]interface{} {
	opts := o.defaults
	if override != nil {
		if override.Temperature != nil {
			opts.Temperature = override.Temperature
		}
		if override.TopP != nil {
			opts.TopP = override.TopP
		}
		if override.TopK != nil {
			opts.TopK = override.TopK
		}
		if override.NumPredict != nil {
			opts.NumPredict = override.NumPredict
		}
		if override.NumCtx != nil {
			opts.NumCtx = override.NumCtx
		}
		if override.Seed != nil {
			opts.Seed = override.Seed
		}
	}

	options := make(map[string]interface{})
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		options["top_p"] = *opts.TopP
	}
	if opts.TopK != nil {
		options["top_k"] = *opts.TopK
	}
	if opts.NumPredict != nil {
		options["num_predict"] = *opts.NumPredict
	}
	if opts.NumCtx != nil {
		options["num_ctx"] = *opts.NumCtx
	}
	if opts.Seed != nil {
		options["seed"] = *opts.Seed
	}
	if len(o.stop) > 0 {
		options["stop"] = o.stop
	}
	return options
}

func convertMessages(messages []ChatMessage) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, ollamaMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// send posts body to path and returns the response for a 200 status.
func (o *OllamaLLM) send(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	op := "ollama" + strings.ReplaceAll(path, "/api/", ".")

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Error("Request failed", "model", o.model, "path", path, "error", err)
		return nil, ragerr.FromTransport(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, ragerr.FromHTTP(op, resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func (o *OllamaLLM) post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := o.send(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ragerr.Wrap(ragerr.KindUpstream, "ollama.decode", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

var _ LLM = (*OllamaLLM)(nil)
var _ LLMWithOptions = (*OllamaLLM)(nil)
