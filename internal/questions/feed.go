package questions

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"stackbot/internal/fetch"
	"stackbot/internal/history"
	"stackbot/internal/logx"
	"stackbot/internal/model"
	"stackbot/internal/stackexchange"
)

// Hydrator 按 ID 批量补全问题，由 stackexchange.Client 实现。
type Hydrator interface {
	QuestionsByID(ctx context.Context, site model.Site, ids []string) ([]model.Question, error)
}

// FeedSource 从站点问题订阅中取问题 ID，再经 API 补全正文与分数。
type FeedSource struct {
	HTTP  *fetch.Client
	API   Hydrator
	Retry Retry
	// FeedURL 为空时使用 DefaultFeedURL。
	FeedURL func(model.Site) string
}

// DefaultFeedURL 返回 https://{host}/feeds。
func DefaultFeedURL(site model.Site) string {
	return "https://" + stackexchange.SiteHost(site) + "/feeds"
}

func (s *FeedSource) Fetch(ctx context.Context, site model.Site, exclude *history.DedupSet, pageSize int) ([]model.Question, bool) {
	feedURL := DefaultFeedURL(site)
	if s.FeedURL != nil {
		feedURL = s.FeedURL(site)
	}
	logx.Infof("正在从订阅获取问题：%s", feedURL)
	qs, ok := s.Retry.do(ctx, site, func() ([]model.Question, error) {
		ids, err := ParseFeedIDs(ctx, s.HTTP, feedURL)
		if err != nil {
			return nil, err
		}
		// 先排除已回答的 ID，减少补全请求的数量
		fresh := ids[:0]
		for _, id := range ids {
			if !exclude.HasFor(site, id) {
				fresh = append(fresh, id)
			}
		}
		if pageSize > 0 && len(fresh) > pageSize {
			fresh = fresh[:pageSize]
		}
		return s.API.QuestionsByID(ctx, site, fresh)
	})
	if !ok {
		return nil, false
	}
	// 订阅按时间排序，这里与 API 来源保持一致改为按票数倒序
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Score > qs[j].Score })
	out := Exclude(site, qs, exclude)
	logx.Infof("发现 %d 个新问题", len(out))
	return out, true
}

var questionPath = regexp.MustCompile(`/(?:questions|q)/(\d+)(?:/|$|\?|#)`)

// QuestionID 从问题链接中提取数字 ID（/questions/{id}/... 或 /q/{id}）。
func QuestionID(link string) (string, bool) {
	m := questionPath.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseFeedIDs 抓取并解析订阅，返回条目中出现的问题 ID（按条目顺序去重）。
func ParseFeedIDs(ctx context.Context, cl *fetch.Client, feedURL string) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()
	// gofeed 不直接接收自定义 http.Client，因此先用自定义客户端抓取后再交给 gofeed 解析
	resp, err := cl.Get(reqCtx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("GET feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	seen := map[string]bool{}
	var ids []string
	for _, it := range feed.Items {
		for _, link := range append([]string{it.Link, it.GUID}, it.Links...) {
			id, ok := QuestionID(strings.TrimSpace(link))
			if !ok {
				continue
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
			break
		}
	}
	return ids, nil
}
