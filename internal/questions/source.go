// 包 questions 提供候选问题来源：
// - APISource：按票数倒序调用 /questions，有界重试，失败返回“无数据”而非错误
// - FeedSource：解析站点问题订阅，再按 ID 补全正文
// - BodyText：将问题 HTML 正文转换为纯文本
package questions

import (
	"context"
	"time"

	"stackbot/internal/history"
	"stackbot/internal/logx"
	"stackbot/internal/metrics"
	"stackbot/internal/model"
	"stackbot/internal/policy"
)

// Source 获取某站点的候选问题；ok=false 表示重试耗尽，本轮跳过该站点。
type Source interface {
	Fetch(ctx context.Context, site model.Site, exclude *history.DedupSet, pageSize int) (qs []model.Question, ok bool)
}

// Lister 为 APISource 依赖的接口，由 stackexchange.Client 实现。
type Lister interface {
	Questions(ctx context.Context, site model.Site, pageSize int) ([]model.Question, error)
}

// Retry 描述有界重试：恰好 Attempts 次尝试，两次之间等待 Delay（最后一次之后不等待）。
type Retry struct {
	Attempts int
	Delay    time.Duration
	Sleep    policy.SleepFunc
	Metrics  *metrics.Metrics
}

// do 执行 fn 直到成功或尝试次数耗尽；ctx 取消时立即放弃。
func (r Retry) do(ctx context.Context, site model.Site, fn func() ([]model.Question, error)) ([]model.Question, bool) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = policy.Sleep
	}
	for i := 0; i < attempts; i++ {
		qs, err := fn()
		if err == nil {
			r.Metrics.FetchAttempt(site, metrics.OutcomeOK)
			return qs, true
		}
		r.Metrics.FetchAttempt(site, metrics.OutcomeError)
		logx.Errorf("Stack Exchange API 错误（第 %d 次）：%v", i+1, err)
		if i == attempts-1 {
			break
		}
		if err := sleep(ctx, r.Delay); err != nil {
			return nil, false
		}
	}
	return nil, false
}

// APISource 为默认问题来源。
type APISource struct {
	API   Lister
	Retry Retry
}

func (s *APISource) Fetch(ctx context.Context, site model.Site, exclude *history.DedupSet, pageSize int) ([]model.Question, bool) {
	logx.Infof("正在从 %s 获取问题...", site)
	qs, ok := s.Retry.do(ctx, site, func() ([]model.Question, error) {
		return s.API.Questions(ctx, site, pageSize)
	})
	if !ok {
		return nil, false
	}
	out := Exclude(site, qs, exclude)
	logx.Infof("发现 %d 个新问题", len(out))
	return out, true
}

// Exclude 去掉该站点已回答的问题，保持原有顺序。
func Exclude(site model.Site, qs []model.Question, exclude *history.DedupSet) []model.Question {
	out := make([]model.Question, 0, len(qs))
	for _, q := range qs {
		if exclude.HasFor(site, q.ID) {
			continue
		}
		out = append(out, q)
	}
	return out
}
