// 包 policy 提供配额与节奏相关的无状态判断：每日上限、发帖间隔、限流退避与限流错误识别。
package policy

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"stackbot/internal/config"
	"stackbot/internal/stackexchange"
)

// DailyLimitReached 判断今日发帖数是否已达上限；max <= 0 表示不限制。
func DailyLimitReached(count, max int) bool {
	return max > 0 && count >= max
}

// NextPaceDelay 返回 [minSeconds, maxSeconds] 内均匀分布的整秒延迟。
func NextPaceDelay(minSeconds, maxSeconds int) time.Duration {
	if maxSeconds < minSeconds {
		minSeconds, maxSeconds = maxSeconds, minSeconds
	}
	if minSeconds < 0 {
		minSeconds = 0
	}
	if maxSeconds <= minSeconds {
		return time.Duration(minSeconds) * time.Second
	}
	return time.Duration(minSeconds+rand.IntN(maxSeconds-minSeconds+1)) * time.Second
}

// Policy 汇总编排器使用的各类固定等待时长。
type Policy struct {
	MinPaceSeconds int
	MaxPaceSeconds int
	RateLimitSleep time.Duration
	DailyLimitWait time.Duration
	ErrorSleep     time.Duration
	CycleSleep     time.Duration
	LoopErrorSleep time.Duration
	MaxDaily       int
}

// FromConfig 从配置换算出 Policy。
func FromConfig(c *config.Config) Policy {
	return Policy{
		MinPaceSeconds: c.MinSleepSeconds,
		MaxPaceSeconds: c.MaxSleepSeconds,
		RateLimitSleep: c.RateLimitBackoff(),
		DailyLimitWait: c.DailyLimitWait(),
		ErrorSleep:     c.ErrorDelay(),
		CycleSleep:     c.CycleSleep(),
		LoopErrorSleep: c.LoopErrorDelay(),
		MaxDaily:       c.MaxDailyComments,
	}
}

func (p Policy) RateLimitBackoff() time.Duration { return p.RateLimitSleep }

// NextPace 为成功发帖后的随机间隔。
func (p Policy) NextPace() time.Duration {
	return NextPaceDelay(p.MinPaceSeconds, p.MaxPaceSeconds)
}

// DailyLimitReached 使用 Policy 中的每日上限。
func (p Policy) DailyLimitReached(count int) bool {
	return DailyLimitReached(count, p.MaxDaily)
}

// IsRateLimited 判断错误是否表示上游限流：
// 先按已知错误类型（Stack Exchange / OpenAI 兼容接口 / Gemini）判断，
// 无法识别时退回到错误文本中的 "rate limit" 子串匹配（不区分大小写）。
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var seErr *stackexchange.APIError
	if errors.As(err, &seErr) && seErr.Throttled() {
		return true
	}
	var oaErr *openai.APIError
	if errors.As(err, &oaErr) && oaErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var oaReqErr *openai.RequestError
	if errors.As(err, &oaReqErr) && oaReqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) && geminiThrottled(gErr) {
		return true
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil && geminiThrottled(*gErrPtr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

func geminiThrottled(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}

// SleepFunc 为可替换的等待函数，测试中注入以避免真实等待。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep 等待 d；ctx 取消时提前返回 ctx.Err()。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
