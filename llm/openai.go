package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aqua777/go-ragchat/ragerr"
)

const (
	OpenAI_API_URL_v1 = "https://api.openai.com/v1"
)

// OpenAILLM talks to any OpenAI-compatible chat completion endpoint.
type OpenAILLM struct {
	client   *openai.Client
	model    string
	logger   *slog.Logger
	defaults GenerateOptions
}

// OpenAIOption configures an OpenAILLM.
type OpenAIOption func(*OpenAILLM)

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(o *OpenAILLM) {
		o.logger = logger
	}
}

// WithOpenAIDefaults sets the default generation options.
func WithOpenAIDefaults(opts GenerateOptions) OpenAIOption {
	return func(o *OpenAILLM) {
		o.defaults = opts
	}
}

func NewOpenAILLM(baseUrl, model, apiKey string, opts ...OpenAIOption) *OpenAILLM {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if baseUrl == "" {
		baseUrl = os.Getenv("OPENAI_URL")
		if baseUrl == "" {
			baseUrl = OpenAI_API_URL_v1
		}
	}

	if model == "" {
		model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseUrl

	return NewOpenAILLMWithClient(openai.NewClientWithConfig(config), model, opts...)
}

func NewOpenAILLMWithClient(client *openai.Client, model string, opts ...OpenAIOption) *OpenAILLM {
	if model == "" {
		model = openai.GPT4oMini
	}

	o := &OpenAILLM{
		client: client,
		model:  model,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ModelID returns the model identifier.
func (o *OpenAILLM) ModelID() string {
	return o.model
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt string) (string, error) {
	return o.CompleteWithOptions(ctx, prompt, nil)
}

// CompleteWithOptions sends prompt as a single user message with per-call options.
func (o *OpenAILLM) CompleteWithOptions(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	o.logger.Info("Complete called", "model", o.model, "prompt_len", len(prompt))

	req := o.request([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, opts)

	return o.create(ctx, "openai.complete", req)
}

func (o *OpenAILLM) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	o.logger.Info("Chat called", "model", o.model, "message_count", len(messages))

	return o.create(ctx, "openai.chat", o.request(convertToOpenAIMessages(messages), nil))
}

func (o *OpenAILLM) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	o.logger.Info("Stream called", "model", o.model, "prompt_len", len(prompt))

	req := o.request([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, nil)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		o.logger.Error("Stream failed", "error", err)
		return nil, classifyOpenAIError("openai.stream", err)
	}

	tokenChan := make(chan string)

	go func() {
		defer close(tokenChan)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				o.logger.Error("Stream receive error", "error", err)
				return
			}

			if len(response.Choices) > 0 {
				delta := response.Choices[0].Delta.Content
				if delta != "" {
					select {
					case tokenChan <- delta:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return tokenChan, nil
}

func (o *OpenAILLM) request(messages []openai.ChatCompletionMessage, override *GenerateOptions) openai.ChatCompletionRequest {
	opts := o.defaults
	if override != nil {
		if override.Temperature != nil {
			opts.Temperature = override.Temperature
		}
		if override.TopP != nil {
			opts.TopP = override.TopP
		}
		if override.NumPredict != nil {
			opts.NumPredict = override.NumPredict
		}
		if override.Seed != nil {
			opts.Seed = override.Seed
		}
		opts.JSON = override.JSON
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
		// The client drops a zero temperature from the payload.
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.NumPredict != nil {
		req.MaxTokens = *opts.NumPredict
	}
	if opts.Seed != nil {
		seed := *opts.Seed
		req.Seed = &seed
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (o *OpenAILLM) create(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("Completion failed", "op", op, "error", err)
		return "", classifyOpenAIError(op, err)
	}

	if len(resp.Choices) == 0 {
		return "", ragerr.Upstream(op, 0, "openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ragerr.FromHTTP(op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ragerr.FromHTTP(op, reqErr.HTTPStatusCode, fmt.Sprint(reqErr.Err))
	}
	return ragerr.FromTransport(op, err)
}

func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

var _ LLM = (*OpenAILLM)(nil)
var _ LLMWithOptions = (*OpenAILLM)(nil)
