// 包 bot 负责主流程编排：
// - 每轮开始检查每日配额，重建去重集合并重新读取站点列表
// - 按站点顺序抓取→筛选→生成→发帖→记录→间隔
// - 单问题粒度的错误处理：限流退避并放弃该站点，其余错误短暂等待后继续
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stackbot/internal/answer"
	"stackbot/internal/config"
	"stackbot/internal/history"
	"stackbot/internal/logx"
	"stackbot/internal/metrics"
	"stackbot/internal/model"
	"stackbot/internal/policy"
	"stackbot/internal/questions"
	"stackbot/internal/stackexchange"
)

// History 为历史文件的读写能力（*history.Store 实现）。
type History interface {
	Append(site model.Site, questionTitle, answerLink string) error
	LoadDedupSet() (*history.DedupSet, error)
	CountToday() (int, error)
}

// Index 为显式去重索引（*store.SQLite 实现），可为空。
type Index interface {
	RecordAnswer(ctx context.Context, a model.AnsweredQuestion) error
	QuestionKeys(ctx context.Context) ([]model.QuestionKey, error)
}

// SiteLister 每轮返回站点列表（sites.Provider 实现）。
type SiteLister interface {
	Sites() []model.Site
}

// Filter 为问题资格判断（rules.Filter 实现）。
type Filter interface {
	Eligible(q model.Question) bool
	Reason(q model.Question) string
}

// Poster 提交回答并返回回答 ID；出错时不得记录。
type Poster interface {
	Post(ctx context.Context, site model.Site, questionID, text string) (string, error)
}

// Deps 为 Runner 的全部依赖，启动时注入，便于测试替换。
type Deps struct {
	Config    *config.Config
	History   History
	Index     Index
	Sites     SiteLister
	Source    questions.Source
	Filter    Filter
	Generator answer.Generator
	Poster    Poster
	Metrics   *metrics.Metrics
	// 以下可为空，使用默认实现
	Sleep      policy.SleepFunc
	Now        func() time.Time
	NewID      func() string
	AnswerLink func(site model.Site, answerID string) string
}

// CycleResult 汇总一轮的执行情况。
type CycleResult struct {
	ID          string
	Number      int
	Sites       int
	Posted      int
	Failed      int
	RateLimited int
	DedupSize   int
	// DailyLimit 为 true 表示本轮因每日配额已满而提前结束（或未开始）。
	DailyLimit bool
}

// Runner 持有编排器唯一的可变状态：当前状态与轮次计数。
type Runner struct {
	d      Deps
	policy policy.Policy
	state  State
	cycle  int
}

// New 创建 Runner。
func New(d Deps) *Runner {
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Sleep == nil {
		d.Sleep = policy.Sleep
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.AnswerLink == nil {
		d.AnswerLink = stackexchange.AnswerLink
	}
	return &Runner{d: d, policy: policy.FromConfig(d.Config), state: Idle}
}

// State 返回当前状态。
func (r *Runner) State() State { return r.state }

func (r *Runner) setState(s State) {
	if r.state != s {
		logx.Debugf("状态：%s → %s", r.state, s)
		r.state = s
	}
}

// Run 循环执行直至 ctx 取消，返回 ctx.Err()。单轮出现的意外错误只记录并等待，不会终止进程。
func (r *Runner) Run(ctx context.Context) error {
	for {
		res, err := r.RunCycle(ctx)
		if ctx.Err() != nil {
			r.setState(Stopped)
			return ctx.Err()
		}
		var wait time.Duration
		switch {
		case err != nil:
			logx.Errorf("主循环出现意外错误：%v", err)
			wait = r.policy.LoopErrorSleep
		case res.DailyLimit:
			logx.Warnf("已达到每日上限（%d），等待到明天...", r.policy.MaxDaily)
			wait = r.policy.DailyLimitWait
		default:
			logx.Infof("休息 %d 分钟后开始下一轮...", int(r.policy.CycleSleep/time.Minute))
			wait = r.policy.CycleSleep
		}
		r.setState(Idle)
		if err := r.d.Sleep(ctx, wait); err != nil {
			r.setState(Stopped)
			return err
		}
	}
}

// RunCycle 执行一轮完整的站点遍历。
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	r.setState(Idle)
	count, err := r.d.History.CountToday()
	if err != nil {
		return res, fmt.Errorf("count today: %w", err)
	}
	r.d.Metrics.SetDaily(count)
	if r.policy.DailyLimitReached(count) {
		res.DailyLimit = true
		return res, nil
	}

	sites := r.d.Sites.Sites()
	dedup, err := r.loadDedup(ctx)
	if err != nil {
		return res, err
	}
	r.cycle++
	res.ID = r.d.NewID()
	res.Number = r.cycle
	res.Sites = len(sites)
	res.DedupSize = dedup.Len()
	logx.Infof("开始第 %d 轮（%s）", res.Number, res.ID)
	logx.Infof("当前跟踪 %d 个已回答问题", dedup.Len())

	for _, site := range sites {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		stop, err := r.runSite(ctx, site, dedup, &count, &res)
		if err != nil {
			return res, err
		}
		if stop {
			res.DailyLimit = true
			return res, nil
		}
	}
	r.d.Metrics.CycleDone()
	logx.Successf("完成第 %d 轮：发布 %d 个回答", res.Number, res.Posted)
	return res, nil
}

// loadDedup 合并历史文件中的问题 ID 与显式索引中的（站点, ID）；索引读取失败只告警。
func (r *Runner) loadDedup(ctx context.Context) (*history.DedupSet, error) {
	dedup, err := r.d.History.LoadDedupSet()
	if err != nil {
		return nil, fmt.Errorf("load dedup set: %w", err)
	}
	if r.d.Index != nil {
		keys, err := r.d.Index.QuestionKeys(ctx)
		if err != nil {
			logx.Warnf("读取回答索引失败：%v", err)
		} else {
			dedup.MergeKeys(keys...)
		}
	}
	return dedup, nil
}

// runSite 处理单个站点；返回 stop=true 表示每日配额已满，应结束本轮。
func (r *Runner) runSite(ctx context.Context, site model.Site, dedup *history.DedupSet, count *int, res *CycleResult) (stop bool, err error) {
	logx.Infof("处理站点：%s", site)
	r.setState(FetchingQuestions)
	qs, ok := r.d.Source.Fetch(ctx, site, dedup, r.d.Config.PostsPerRequest)
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if !ok {
		logx.Warnf("[%s] 获取问题失败，本轮跳过该站点", site)
		return false, nil
	}
	posted := 0
	for _, q := range qs {
		if limit := r.d.Config.MaxCommentsPerSite; limit > 0 && posted >= limit {
			logx.Infof("[%s] 已达到单站点上限 %d", site, limit)
			break
		}
		r.setState(EvaluatingQuestion)
		if dedup.HasFor(site, q.ID) {
			continue
		}
		if !r.d.Filter.Eligible(q) {
			logx.Debugf("[%s] 跳过问题 %s：%s", site, q.ID, r.d.Filter.Reason(q))
			continue
		}
		// 每次发帖前重新检查配额
		if r.policy.DailyLimitReached(*count) {
			return true, nil
		}
		ok, err := r.handleQuestion(ctx, site, q, dedup)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			if policy.IsRateLimited(err) {
				res.RateLimited++
				r.d.Metrics.RateLimited()
				logx.Warnf("[%s] 触发限流：%v，等待 %d 分钟后处理下一个站点", site, err, int(r.policy.RateLimitBackoff()/time.Minute))
				if err := r.d.Sleep(ctx, r.policy.RateLimitBackoff()); err != nil {
					return false, err
				}
				break
			}
			var pe *postError
			if errors.As(err, &pe) {
				res.Failed++
				logx.Errorf("[%s] 发布回答失败：%v", site, err)
				continue
			}
			logx.Errorf("[%s] 处理问题出错：%v", site, err)
			if err := r.d.Sleep(ctx, r.policy.ErrorSleep); err != nil {
				return false, err
			}
			continue
		}
		if !ok {
			continue
		}
		posted++
		*count++
		res.Posted++
		r.d.Metrics.SetDaily(*count)
		r.setState(Pacing)
		d := r.policy.NextPace()
		logx.Infof("等待 %d 秒...", int(d/time.Second))
		if err := r.d.Sleep(ctx, d); err != nil {
			return false, err
		}
	}
	logx.Successf("在 %s 完成 %d 个回答", site, posted)
	return false, nil
}

// postError 标记发帖失败（非 200 或缺少回答 ID）：不记录，也不额外等待。
type postError struct{ err error }

func (e *postError) Error() string { return e.err.Error() }
func (e *postError) Unwrap() error { return e.err }

// handleQuestion 生成并提交回答，成功后写入历史与索引。
// 返回 ok=false 且 err=nil 表示生成结果为空，直接跳过。
func (r *Runner) handleQuestion(ctx context.Context, site model.Site, q model.Question, dedup *history.DedupSet) (bool, error) {
	logx.Infof("处理问题：%s...", truncateRunes(q.Title, 50))
	r.setState(Generating)
	text, err := r.d.Generator.Generate(ctx, q.Title, questions.BodyText(q.Body))
	if err != nil {
		r.d.Metrics.GenerationFailed()
		if errors.Is(err, answer.ErrEmpty) {
			logx.Warnf("[%s] 生成结果为空，跳过问题 %s", site, q.ID)
			return false, nil
		}
		return false, fmt.Errorf("generate answer: %w", err)
	}

	r.setState(Posting)
	answerID, err := r.d.Poster.Post(ctx, site, q.ID, text)
	if err != nil {
		r.d.Metrics.PostFailed(site)
		return false, &postError{err: fmt.Errorf("post answer: %w", err)}
	}
	if answerID == "" {
		r.d.Metrics.PostFailed(site)
		return false, &postError{err: errors.New("post answer: empty answer id")}
	}

	r.setState(Recording)
	link := r.d.AnswerLink(site, answerID)
	logx.Successf("成功回答 %s 上的问题", site)
	logx.Successf("回答链接：%s", link)
	r.d.Metrics.Posted(site)
	// 先更新内存集合：即便持久化失败，本轮剩余部分也不会重复回答
	dedup.AddFor(site, q.ID)
	if err := r.d.History.Append(site, q.Title, link); err != nil {
		logx.Errorf("写入历史文件失败：%v", err)
	} else {
		logx.Infof("回答链接已写入历史文件")
	}
	if r.d.Index != nil {
		rec := model.AnsweredQuestion{
			Site:       site,
			QuestionID: q.ID,
			AnswerID:   answerID,
			Title:      q.Title,
			Link:       link,
			CreatedAt:  r.d.Now(),
		}
		if err := r.d.Index.RecordAnswer(ctx, rec); err != nil {
			logx.Errorf("写入回答索引失败：%v", err)
		}
	}
	return true, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
