package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPromptTemplate = `You are a helpful task management assistant. You help users:
- Improve task descriptions to be clearer and more actionable
- Break down complex tasks into smaller, manageable steps
- Suggest optimizations for better productivity
- Provide Pomodoro technique tips

Current context:
%s

Be concise but helpful. Use markdown formatting when appropriate.`

// OpenAI asks an OpenAI-compatible chat completion endpoint
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates the model provider. An empty baseURL uses the public API.
func NewOpenAI(apiKey, baseURL, model string, httpClient *http.Client, opts ...option.RequestOption) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(httpClient))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAI{client: openai.NewClient(reqOpts...), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Reply(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(req.Context)),
			openai.UserMessage(req.Message),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// SystemPrompt embeds the pretty-printed context in the assistant instructions
func SystemPrompt(taskContext json.RawMessage) string {
	pretty := "{}"
	if len(bytes.TrimSpace(taskContext)) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, taskContext, "", "  "); err == nil {
			pretty = buf.String()
		} else {
			pretty = string(taskContext)
		}
	}
	return fmt.Sprintf(systemPromptTemplate, pretty)
}
