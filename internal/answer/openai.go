package answer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"stackbot/internal/logx"
)

// OpenAI 使用 OpenAI 兼容接口（默认 OpenRouter）生成回答。
type OpenAI struct {
	client   *openai.Client
	model    string
	prompter *Prompter
}

// OpenAIOptions 为 OpenAI 兼容接口的连接参数。
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	// Headers 附加到每个请求（如 OpenRouter 的 HTTP-Referer / X-Title）。
	Headers map[string]string
	Timeout time.Duration

	// Transport 为空时使用 http.DefaultTransport；传入 fetch.Client.Transport() 以复用代理配置。
	Transport http.RoundTripper
}

// NewOpenAI 创建客户端。
func NewOpenAI(opts OpenAIOptions, p *Prompter) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &headerTransport{base: base, headers: opts.Headers},
	}
	if p == nil {
		p = NewPrompter("", nil)
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: opts.Model, prompter: p}
}

func (o *OpenAI) Generate(ctx context.Context, title, body string) (string, error) {
	logx.Debugf("调用文本生成：model=%s", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.prompter.System()},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(title, body)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w", ErrEmpty)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion: %w", ErrEmpty)
	}
	return text, nil
}

// headerTransport 为每个请求附加固定请求头。
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			r.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(r)
}
