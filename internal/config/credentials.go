package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials 为启动所需的全部凭据，只从环境变量（及可选 .env）读取。
type Credentials struct {
	ClientID        string
	ClientSecret    string
	Key             string
	AccessToken     string
	UserAgent       string
	BotUsername     string
	OpenRouterKey   string
	GeminiKey       string
	GeneratorTarget string // 当前使用的生成服务：openai|gemini
}

// MissingError 列出所有缺失项，便于一次性提示用户修复。
type MissingError struct {
	Items []string
}

func (e *MissingError) Error() string {
	return "missing required items: " + strings.Join(e.Items, ", ")
}

// LoadCredentials 先尝试加载 envFile（不存在时忽略），再读取环境变量。
// 已存在的环境变量优先于 .env 中的同名项（godotenv.Load 的语义）。
func LoadCredentials(envFile, provider string) (Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if provider == "" {
		provider = "openai"
	}
	return Credentials{
		ClientID:        os.Getenv("STACK_CLIENT_ID"),
		ClientSecret:    os.Getenv("STACK_CLIENT_SECRET"),
		Key:             os.Getenv("STACK_KEY"),
		AccessToken:     os.Getenv("STACK_ACCESS_TOKEN"),
		UserAgent:       os.Getenv("USER_AGENT"),
		BotUsername:     os.Getenv("BOT_USERNAME"),
		OpenRouterKey:   os.Getenv("OPENROUTER_API_KEY"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeneratorTarget: provider,
	}, nil
}

// Missing 按固定顺序返回缺失的环境变量名。
func (c Credentials) Missing() []string {
	required := []struct {
		name, value string
	}{
		{"STACK_CLIENT_ID", c.ClientID},
		{"STACK_CLIENT_SECRET", c.ClientSecret},
		{"STACK_KEY", c.Key},
		{"STACK_ACCESS_TOKEN", c.AccessToken},
	}
	if c.GeneratorTarget == "gemini" {
		required = append(required, struct{ name, value string }{"GEMINI_API_KEY", c.GeminiKey})
	} else {
		required = append(required, struct{ name, value string }{"OPENROUTER_API_KEY", c.OpenRouterKey})
	}
	required = append(required,
		struct{ name, value string }{"USER_AGENT", c.UserAgent},
		struct{ name, value string }{"BOT_USERNAME", c.BotUsername},
	)
	var out []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			out = append(out, r.name)
		}
	}
	return out
}

// GeneratorKey 返回当前生成服务对应的 API Key。
func (c Credentials) GeneratorKey() string {
	if c.GeneratorTarget == "gemini" {
		return c.GeminiKey
	}
	return c.OpenRouterKey
}

// VerifySetup 检查站点列表文件与凭据，返回 *MissingError 汇总全部缺失项。
func VerifySetup(c *Config, creds Credentials) error {
	var items []string
	b, err := os.ReadFile(c.SitesFile)
	switch {
	case err != nil:
		items = append(items, c.SitesFile)
	case strings.TrimSpace(string(b)) == "":
		items = append(items, "sites in "+c.SitesFile)
	}
	for _, name := range creds.Missing() {
		items = append(items, "Environment variable: "+name)
	}
	if len(items) > 0 {
		return &MissingError{Items: items}
	}
	return nil
}
