package answer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stackbot/internal/config"
)

// New 按配置的 provider 创建生成器；transport 通常为 fetch.Client.Transport()，使 PROXY 配置同样生效。
func New(ctx context.Context, g config.Generator, apiKey string, timeout time.Duration, transport http.RoundTripper) (Generator, error) {
	p := NewPrompter(g.SystemPrompt, g.Promotions)
	switch g.Provider {
	case "", "openai":
		return NewOpenAI(OpenAIOptions{
			APIKey:    apiKey,
			BaseURL:   g.BaseURL,
			Model:     g.Model,
			Headers:   map[string]string{"HTTP-Referer": g.Referer, "X-Title": g.Title},
			Timeout:   timeout,
			Transport: transport,
		}, p), nil
	case "gemini":
		return NewGemini(ctx, apiKey, g.Model, p, transport)
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", g.Provider)
	}
}
