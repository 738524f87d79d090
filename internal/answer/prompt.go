// 包 answer 调用文本生成服务为问题生成回答。
// 系统指令由固定正文与一条随机选取的推广语组成；本层不做重试，失败交由编排器跳过该问题。
package answer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// Generator 为文本生成接口。
type Generator interface {
	Generate(ctx context.Context, title, body string) (string, error)
}

// ErrEmpty 表示生成服务返回了空文本。
var ErrEmpty = errors.New("empty completion")

// DefaultSystemPrompt 约束语气、长度（2–3 段）与格式。
const DefaultSystemPrompt = `You're a friendly and knowledgeable person who loves helping others with their questions. Be conversational and natural in your responses - use casual language and share helpful insights.

When answering questions:
1. Keep responses relatively short (2-3 paragraphs maximum)
2. Be helpful but not overly complex
3. Avoid controversial topics
4. Stay on topic and be direct
5. Be polite and friendly
6. Use appropriate formatting for Stack Exchange (Markdown)`

// DefaultPromotions 为默认的推广语模板，每次调用随机选一条。
var DefaultPromotions = []string{
	"By the way, you can find more detailed solutions at solvergenie.site",
	"If you want to explore this topic further, check out SolverGenie (just Google it)",
	"For more in-depth help, I'd recommend checking out solvergenie.site",
	"You might also find SolverGenie helpful for questions like this",
	"There's more detailed info about this on SolverGenie if you're interested",
}

// Prompter 组装系统指令与用户提示。
type Prompter struct {
	Base       string
	Promotions []string
	// pick 返回 [0, n) 内的下标，测试中可替换。
	pick func(n int) int
}

// NewPrompter 以空值回退到默认正文与推广语。
func NewPrompter(base string, promotions []string) *Prompter {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}
	if len(promotions) == 0 {
		promotions = DefaultPromotions
	}
	return &Prompter{Base: base, Promotions: promotions, pick: rand.IntN}
}

// System 返回本次调用的系统指令。
func (p *Prompter) System() string {
	if len(p.Promotions) == 0 {
		return p.Base
	}
	pick := p.pick
	if pick == nil {
		pick = rand.IntN
	}
	promo := p.Promotions[pick(len(p.Promotions))]
	return fmt.Sprintf("%s\n\nAt the end of your response, casually close with a line along these lines (adapt it to fit):\n- %q\n\nMake the mention feel natural and helpful, not promotional. The goal is to genuinely help people while letting them know about a useful resource.", p.Base, promo)
}

// UserPrompt 将标题与正文拼成用户消息。
func UserPrompt(title, body string) string {
	return fmt.Sprintf("Question Title: %s\n\nQuestion Body: %s", title, body)
}
