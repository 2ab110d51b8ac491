package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

type Settings struct {
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
	MaxTokens    int64

	// Extra client options, applied last.
	RequestOptions []option.RequestOption
}

// OpenAI streams chat completions from any OpenAI compatible endpoint.
type OpenAI struct {
	client       openai.Client
	model        string
	systemPrompt string
	maxTokens    int64
}

func NewOpenAI(s Settings) (*OpenAI, error) {
	if s.Model == "" {
		return nil, errors.New("completion model is required")
	}

	options := []option.RequestOption{}
	if s.BaseURL != "" {
		options = append(options, option.WithBaseURL(s.BaseURL))
	}
	if s.APIKey != "" {
		options = append(options, option.WithAPIKey(s.APIKey))
	}
	options = append(options, s.RequestOptions...)

	return &OpenAI{
		client:       openai.NewClient(options...),
		model:        s.Model,
		systemPrompt: s.SystemPrompt,
		maxTokens:    s.MaxTokens,
	}, nil
}

func (o *OpenAI) params(prompt string) openai.ChatCompletionNewParams {
	param := openai.ChatCompletionNewParams{
		Model: o.model,
	}
	if o.systemPrompt != "" {
		param.Messages = append(param.Messages, openai.SystemMessage(o.systemPrompt))
	}
	param.Messages = append(param.Messages, openai.UserMessage(prompt))
	if o.maxTokens > 0 {
		param.MaxCompletionTokens = openai.Int(o.maxTokens)
	}
	return param
}

func (o *OpenAI) Stream(ctx context.Context, prompt string) (Stream, error) {
	completionLogger.Debug().Str("model", o.model).Int("prompt_len", len(prompt)).Msg("Starting completion stream")
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(prompt))
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}
	return &openaiStream{stream: stream}, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	delta  string
}

func (s *openaiStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.delta = chunk.Choices[0].Delta.Content
		return true
	}
	s.delta = ""
	return false
}

func (s *openaiStream) Delta() string { return s.delta }

func (s *openaiStream) Err() error { return classify(s.stream.Err()) }

func (s *openaiStream) Close() error { return s.stream.Close() }

// classify tags quota failures with ErrRequestLimit.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrRequestLimit, err)
	}
	if IsRequestLimit(err) {
		return fmt.Errorf("%w: %w", ErrRequestLimit, err)
	}
	return err
}
