// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验；凭据见 credentials.go。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBlacklist 为默认的标题黑名单短语。
var DefaultBlacklist = []string{
	"[closed]", "[duplicate]", "moderator", "announcement",
	"featured", "wiki",
}

// Config 为进程级只读参数：启动时加载一次，之后不再修改。
type Config struct {
	SitesFile          string    `yaml:"SITES_FILE"`
	HistoryFile        string    `yaml:"HISTORY_FILE"`
	MaxCommentsPerSite int       `yaml:"MAX_COMMENTS_PER_SITE"`
	MinSleepSeconds    int       `yaml:"MIN_SLEEP_SECONDS"`
	MaxSleepSeconds    int       `yaml:"MAX_SLEEP_SECONDS"`
	CycleSleepMinutes  int       `yaml:"CYCLE_SLEEP_MINUTES"`
	RateLimitSleep     int       `yaml:"RATE_LIMIT_SLEEP"`
	DailyLimitSleep    int       `yaml:"DAILY_LIMIT_SLEEP"`
	ErrorSleep         int       `yaml:"ERROR_SLEEP"`
	LoopErrorSleep     int       `yaml:"LOOP_ERROR_SLEEP"`
	RetryDelay         int       `yaml:"RETRY_DELAY"`
	MaxRetries         int       `yaml:"MAX_RETRIES"`
	MinPostScore       int       `yaml:"MIN_POST_SCORE"`
	BlacklistedPhrases []string  `yaml:"BLACKLISTED_PHRASES"`
	MaxTitleLength     int       `yaml:"MAX_TITLE_LENGTH"`
	PostsPerRequest    int       `yaml:"POSTS_PER_REQUEST"`
	MaxDailyComments   int       `yaml:"MAX_DAILY_COMMENTS"`
	MinReputation      int       `yaml:"MIN_REPUTATION"`
	QuestionSource     string    `yaml:"QUESTION_SOURCE"` // api|feed
	API                API       `yaml:"API"`
	Generator          Generator `yaml:"GENERATOR"`
	Database           Database  `yaml:"DATABASE"`
	Proxy              Proxy     `yaml:"PROXY"`
	HTTP               HTTP      `yaml:"HTTP"`
	MetricsAddr        string    `yaml:"METRICS_ADDR"`
	LogLevel           string    `yaml:"LOG_LEVEL"`
	LogFormat          string    `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale          string    `yaml:"LOG_LOCALE"` // en|zh-CN
	LogColor           string    `yaml:"LOG_COLOR"`  // auto|always|never
	LogFile            string    `yaml:"LOG_FILE"`

	// minPostScoreSet 记录 MIN_POST_SCORE 是否显式出现在配置中（0 为合法取值）。
	minPostScoreSet bool
}

type API struct {
	BaseURL           string  `yaml:"base_url"`
	VerifySite        string  `yaml:"verify_site"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Generator struct {
	Provider     string   `yaml:"provider"` // openai|gemini
	BaseURL      string   `yaml:"base_url"`
	Model        string   `yaml:"model"`
	Referer      string   `yaml:"referer"`
	Title        string   `yaml:"title"`
	SystemPrompt string   `yaml:"system_prompt"`
	Promotions   []string `yaml:"promotions"`
}

type Database struct {
	Type string `yaml:"type"` // sqlite (default)
	DSN  string `yaml:"dsn"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

type HTTP struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Load 从文件读取 YAML 并反序列化为 Config，同时进行校验与默认值填充。
// 文件不存在时返回全部默认值。
func Load(path string) (*Config, error) {
	var c Config
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("validate config: %w", err)
			}
			return &c, nil
		}
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	var present struct {
		MinPostScore *int `yaml:"MIN_POST_SCORE"`
	}
	if err := yaml.Unmarshal(b, &present); err == nil && present.MinPostScore != nil {
		c.minPostScoreSet = true
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Default 返回仅包含默认值的配置。
func Default() *Config {
	var c Config
	_ = c.Validate()
	return &c
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
// 数值字段为 0 时视为未配置并填充默认值；MAX_COMMENTS_PER_SITE 与 MIN_REPUTATION 的 0 有意义（不限制），保留。
// MIN_POST_SCORE 未配置时为 5；显式写 0 表示不限制最低分。
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"MAX_COMMENTS_PER_SITE": c.MaxCommentsPerSite,
		"MIN_SLEEP_SECONDS":     c.MinSleepSeconds,
		"MAX_SLEEP_SECONDS":     c.MaxSleepSeconds,
		"CYCLE_SLEEP_MINUTES":   c.CycleSleepMinutes,
		"RATE_LIMIT_SLEEP":      c.RateLimitSleep,
		"DAILY_LIMIT_SLEEP":     c.DailyLimitSleep,
		"ERROR_SLEEP":           c.ErrorSleep,
		"LOOP_ERROR_SLEEP":      c.LoopErrorSleep,
		"RETRY_DELAY":           c.RetryDelay,
		"MAX_RETRIES":           c.MaxRetries,
		"MAX_TITLE_LENGTH":      c.MaxTitleLength,
		"POSTS_PER_REQUEST":     c.PostsPerRequest,
		"MAX_DAILY_COMMENTS":    c.MaxDailyComments,
		"MIN_REPUTATION":        c.MinReputation,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if c.SitesFile == "" {
		c.SitesFile = "sites.txt"
	}
	if c.HistoryFile == "" {
		c.HistoryFile = "comment_history.txt"
	}
	if c.MinSleepSeconds == 0 {
		c.MinSleepSeconds = 3600
	}
	if c.MaxSleepSeconds == 0 {
		c.MaxSleepSeconds = 7200
	}
	if c.MinSleepSeconds > c.MaxSleepSeconds {
		return errors.New("MIN_SLEEP_SECONDS must be <= MAX_SLEEP_SECONDS")
	}
	if c.CycleSleepMinutes == 0 {
		c.CycleSleepMinutes = 180
	}
	if c.RateLimitSleep == 0 {
		c.RateLimitSleep = 3600
	}
	if c.DailyLimitSleep == 0 {
		c.DailyLimitSleep = 3600
	}
	if c.ErrorSleep == 0 {
		c.ErrorSleep = 60
	}
	if c.LoopErrorSleep == 0 {
		c.LoopErrorSleep = 300
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MinPostScore == 0 && !c.minPostScoreSet {
		c.MinPostScore = 5
	}
	if c.BlacklistedPhrases == nil {
		c.BlacklistedPhrases = append([]string(nil), DefaultBlacklist...)
	}
	if c.MaxTitleLength == 0 {
		c.MaxTitleLength = 300
	}
	if c.PostsPerRequest == 0 {
		c.PostsPerRequest = 10
	}
	if c.PostsPerRequest > 100 {
		return errors.New("POSTS_PER_REQUEST must be <= 100")
	}
	if c.MaxDailyComments == 0 {
		c.MaxDailyComments = 10
	}
	switch c.QuestionSource {
	case "":
		c.QuestionSource = "api"
	case "api", "feed":
	default:
		return fmt.Errorf("unsupported question source: %s", c.QuestionSource)
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://api.stackexchange.com/2.3"
	}
	if c.API.VerifySite == "" {
		c.API.VerifySite = "stackoverflow"
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.New("API.requests_per_second must be >= 0")
	}
	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = 1
	}
	if err := c.Generator.validate(); err != nil {
		return err
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./stackbot.db"
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return errors.New("HTTP.timeout_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds == 0 {
		c.HTTP.TimeoutSeconds = 25
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "en"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}

func (g *Generator) validate() error {
	switch g.Provider {
	case "":
		g.Provider = "openai"
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported generator provider: %s", g.Provider)
	}
	if g.Provider == "openai" {
		if g.BaseURL == "" {
			g.BaseURL = "https://openrouter.ai/api/v1"
		}
		if g.Model == "" {
			g.Model = "qwen/qwen-2-7b-instruct:free"
		}
	}
	if g.Provider == "gemini" && g.Model == "" {
		g.Model = "gemini-2.5-flash"
	}
	if g.Referer == "" {
		g.Referer = "http://localhost:5000"
	}
	if g.Title == "" {
		g.Title = "Stack Exchange Bot"
	}
	return nil
}

// 以下为按语义换算后的时长，避免调用方重复乘以秒/分钟。

func (c *Config) PaceRange() (time.Duration, time.Duration) {
	return seconds(c.MinSleepSeconds), seconds(c.MaxSleepSeconds)
}

func (c *Config) CycleSleep() time.Duration { return time.Duration(c.CycleSleepMinutes) * time.Minute }
func (c *Config) RateLimitBackoff() time.Duration {
	return seconds(c.RateLimitSleep)
}
func (c *Config) DailyLimitWait() time.Duration { return seconds(c.DailyLimitSleep) }
func (c *Config) ErrorDelay() time.Duration     { return seconds(c.ErrorSleep) }
func (c *Config) LoopErrorDelay() time.Duration { return seconds(c.LoopErrorSleep) }
func (c *Config) FetchRetryDelay() time.Duration {
	return seconds(c.RetryDelay)
}
func (c *Config) HTTPTimeout() time.Duration { return seconds(c.HTTP.TimeoutSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
