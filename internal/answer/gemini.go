package answer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"stackbot/internal/logx"
)

// contentGenerator 为 *genai.Models 的子集，便于测试替换。
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini 使用 Gemini API 生成回答。
type Gemini struct {
	models   contentGenerator
	model    string
	prompter *Prompter
}

// NewGemini 创建 Gemini 客户端；transport 非空时经由它发出请求（代理）。
func NewGemini(ctx context.Context, apiKey, model string, p *Prompter, transport http.RoundTripper) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if transport != nil {
		cc.HTTPClient = &http.Client{Transport: transport}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if p == nil {
		p = NewPrompter("", nil)
	}
	return &Gemini{models: client.Models, model: model, prompter: p}, nil
}

func (g *Gemini) Generate(ctx context.Context, title, body string) (string, error) {
	logx.Debugf("调用文本生成：model=%s", g.model)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: g.prompter.System()}}},
	}
	result, err := g.models.GenerateContent(ctx, g.model, genai.Text(UserPrompt(title, body)), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("generate content: %w", ErrEmpty)
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("generate content: %w", ErrEmpty)
	}
	return text, nil
}
