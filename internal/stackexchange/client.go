// 包 stackexchange 是 Stack Exchange API 2.3 的最小客户端：
// 问题列表、按 ID 查询、/me 校验与提交回答。非 200 统一返回 *APIError。
package stackexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"stackbot/internal/fetch"
	"stackbot/internal/logx"
	"stackbot/internal/model"
)

// DefaultBaseURL 为官方 API 地址。
const DefaultBaseURL = "https://api.stackexchange.com/2.3"

// maxBody 限制读取的响应体大小。
const maxBody = 8 << 20

// Client 持有凭据与 HTTP 客户端；无全局状态，便于测试替换。
type Client struct {
	BaseURL     string
	Key         string
	AccessToken string
	HTTP        *fetch.Client

	// backoff 记录每个方法在响应 backoff 字段要求下的最早可用时间。
	mu      sync.Mutex
	backoff map[string]time.Time
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// New 创建客户端，baseURL 为空时使用官方地址。
func New(baseURL, key, accessToken string, cl *fetch.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Key:         key,
		AccessToken: accessToken,
		HTTP:        cl,
		backoff:     map[string]time.Time{},
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// API 方法名，backoff 按方法生效。
const (
	methodQuestions     = "questions"
	methodQuestionsByID = "questions/{ids}"
	methodMe            = "me"
	methodAddAnswer     = "answers/add"
)

// waitBackoff 若上次同方法响应要求退避且尚未到期，则等待剩余时间。
func (c *Client) waitBackoff(ctx context.Context, method string) error {
	c.mu.Lock()
	until := c.backoff[method]
	c.mu.Unlock()
	d := until.Sub(c.now())
	if d <= 0 {
		return nil
	}
	logx.Infof("等待 API 退避（%s）%d 秒", method, int(d.Round(time.Second)/time.Second))
	return c.sleep(ctx, d)
}

// noteBackoff 记录响应中的 backoff 秒数。
func (c *Client) noteBackoff(method string, seconds int) {
	if seconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backoff == nil {
		c.backoff = map[string]time.Time{}
	}
	c.backoff[method] = c.now().Add(time.Duration(seconds) * time.Second)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// APIError 为 API 返回的错误（非 200）。
type APIError struct {
	StatusCode int
	ID         int    `json:"error_id"`
	Name       string `json:"error_name"`
	Message    string `json:"error_message"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("stackexchange api %d %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("stackexchange api status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// Throttled 判断是否为限流类错误（throttle_violation / 429）。
func (e *APIError) Throttled() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.Name == "throttle_violation" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "too many requests")
}

// ErrNoItems 表示 200 响应中缺少期望的 items。
var ErrNoItems = errors.New("no items in response")

type wrapper[T any] struct {
	Items          []T `json:"items"`
	Backoff        int `json:"backoff"`
	QuotaRemaining int `json:"quota_remaining"`
}

// warn 在 API 要求退避或配额将尽时给出提示。
func (w wrapper[T]) warn(site model.Site) {
	if w.Backoff > 0 {
		logx.Warnf("[%s] API 要求退避 %d 秒", site, w.Backoff)
	}
	if w.QuotaRemaining > 0 && w.QuotaRemaining < 100 {
		logx.Warnf("[%s] API 剩余配额 %d", site, w.QuotaRemaining)
	}
}

type apiQuestion struct {
	QuestionID int64  `json:"question_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Score      int    `json:"score"`
	Link       string `json:"link"`
	LockedDate int64  `json:"locked_date"`
	ClosedDate int64  `json:"closed_date"`
}

func (q apiQuestion) toModel(site model.Site) model.Question {
	return model.Question{
		ID:     strconv.FormatInt(q.QuestionID, 10),
		Site:   site,
		Title:  html.UnescapeString(q.Title),
		Body:   q.Body,
		Score:  q.Score,
		Locked: q.LockedDate != 0,
		Closed: q.ClosedDate != 0,
		Link:   q.Link,
	}
}

// Questions 获取按票数倒序的问题（含正文）。
func (c *Client) Questions(ctx context.Context, site model.Site, pageSize int) ([]model.Question, error) {
	q := c.params(site)
	q.Set("pagesize", strconv.Itoa(pageSize))
	q.Set("sort", "votes")
	q.Set("order", "desc")
	q.Set("filter", "withbody")
	if err := c.waitBackoff(ctx, methodQuestions); err != nil {
		return nil, err
	}
	var w wrapper[apiQuestion]
	if err := c.get(ctx, "/questions", q, &w); err != nil {
		return nil, err
	}
	c.noteBackoff(methodQuestions, w.Backoff)
	w.warn(site)
	return toQuestions(site, w.Items), nil
}

// QuestionsByID 按 ID 批量获取问题（最多 100 个）。
func (c *Client) QuestionsByID(ctx context.Context, site model.Site, ids []string) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 100 {
		ids = ids[:100]
	}
	q := c.params(site)
	q.Set("pagesize", strconv.Itoa(len(ids)))
	q.Set("filter", "withbody")
	if err := c.waitBackoff(ctx, methodQuestionsByID); err != nil {
		return nil, err
	}
	var w wrapper[apiQuestion]
	if err := c.get(ctx, "/questions/"+strings.Join(ids, ";"), q, &w); err != nil {
		return nil, err
	}
	c.noteBackoff(methodQuestionsByID, w.Backoff)
	w.warn(site)
	return toQuestions(site, w.Items), nil
}

// Me 返回当前 access_token 对应的账号。
func (c *Client) Me(ctx context.Context, site model.Site) (model.User, error) {
	if err := c.waitBackoff(ctx, methodMe); err != nil {
		return model.User{}, err
	}
	var w wrapper[model.User]
	if err := c.get(ctx, "/me", c.params(site), &w); err != nil {
		return model.User{}, err
	}
	c.noteBackoff(methodMe, w.Backoff)
	if len(w.Items) == 0 {
		return model.User{}, fmt.Errorf("me: %w", ErrNoItems)
	}
	return w.Items[0], nil
}

// AddAnswer 提交回答并返回新回答 ID；非 200 或缺少 answer_id 时返回错误并记录原始响应。
func (c *Client) AddAnswer(ctx context.Context, site model.Site, questionID, body string) (string, error) {
	form := c.params(site)
	form.Set("filter", "default")
	form.Set("body", body)
	endpoint := fmt.Sprintf("%s/questions/%s/answers/add", c.BaseURL, url.PathEscape(questionID))
	if err := c.waitBackoff(ctx, methodAddAnswer); err != nil {
		return "", err
	}
	resp, err := c.HTTP.PostForm(ctx, endpoint, form)
	if err != nil {
		return "", fmt.Errorf("post answer %s/%s: %w", site, questionID, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if resp.StatusCode != http.StatusOK {
		logx.Errorf("发布回答失败：status=%d body=%s", resp.StatusCode, truncate(string(raw), 500))
		return "", decodeAPIError(resp.StatusCode, raw)
	}
	var w wrapper[struct {
		AnswerID int64 `json:"answer_id"`
	}]
	if err := json.Unmarshal(raw, &w); err != nil {
		logx.Errorf("发布回答响应无法解析：%s", truncate(string(raw), 500))
		return "", fmt.Errorf("decode answer response: %w", err)
	}
	c.noteBackoff(methodAddAnswer, w.Backoff)
	if len(w.Items) == 0 || w.Items[0].AnswerID == 0 {
		logx.Errorf("响应中没有回答数据：%s", truncate(string(raw), 500))
		return "", fmt.Errorf("answer response: %w", ErrNoItems)
	}
	return strconv.FormatInt(w.Items[0].AnswerID, 10), nil
}

// Post 为编排器使用的发帖入口。
func (c *Client) Post(ctx context.Context, site model.Site, questionID, text string) (string, error) {
	return c.AddAnswer(ctx, site, questionID, text)
}

// AnswerLink 生成回答链接（https://{site}.com/a/{id}），与历史文件中已有记录的格式保持一致。
func AnswerLink(site model.Site, answerID string) string {
	return fmt.Sprintf("https://%s.com/a/%s", site, answerID)
}

// QuestionLink 生成问题短链接。
func QuestionLink(site model.Site, questionID string) string {
	return fmt.Sprintf("https://%s/q/%s", SiteHost(site), questionID)
}

// SiteHost 返回站点主机名：含点号原样返回，几个独立域名站点加 .com，其余按 {site}.stackexchange.com 处理。
func SiteHost(site model.Site) string {
	host := string(site)
	switch {
	case strings.Contains(host, "."):
	case host == "stackoverflow" || host == "superuser" || host == "serverfault" || host == "askubuntu":
		host += ".com"
	default:
		host += ".stackexchange.com"
	}
	return host
}

func (c *Client) params(site model.Site) url.Values {
	q := url.Values{}
	q.Set("site", string(site))
	if c.Key != "" {
		q.Set("key", c.Key)
	}
	if c.AccessToken != "" {
		q.Set("access_token", c.AccessToken)
	}
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) *APIError {
	e := &APIError{StatusCode: status, Body: string(raw)}
	_ = json.Unmarshal(raw, e)
	return e
}

func toQuestions(site model.Site, items []apiQuestion) []model.Question {
	out := make([]model.Question, 0, len(items))
	for _, it := range items {
		out = append(out, it.toModel(site))
	}
	return out
}

// truncate 按字符截取，避免在多字节字符中间截断。
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
