// 包 fetch 封装 HTTP 客户端（代理/超时/限速/重试），供 Stack Exchange API 与订阅抓取共用。
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent 在未配置 USER_AGENT 时使用。
const DefaultUserAgent = "stackbot/1.0 (+https://stackapps.com)"

// Client 为带限速与可选重试的 HTTP 客户端。
type Client struct {
	http       *http.Client
	retry      int
	retryDelay time.Duration
	userAgent  string
	limiter    *rate.Limiter
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	// Retry 为 Get 的额外重试次数（0 表示只请求一次）。
	Retry      int
	RetryDelay time.Duration
	UserAgent  string
	// RequestsPerSecond <= 0 表示不限速。
	RequestsPerSecond float64
}

// New 创建客户端，支持 http/https 代理与基础超时配置。
func New(opts Options) (*Client, error) {
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && opts.ProxyHTTPS != "" {
				return url.Parse(opts.ProxyHTTPS)
			}
			if req.URL.Scheme == "http" && opts.ProxyHTTP != "" {
				return url.Parse(opts.ProxyHTTP)
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	cl := &http.Client{Transport: transport}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	cl.Timeout = opts.Timeout
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 300 * time.Millisecond
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	c := &Client{http: cl, retry: opts.Retry, retryDelay: opts.RetryDelay, userAgent: ua}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Transport 返回带代理配置的底层 Transport，供其他 HTTP 客户端（如文本生成）复用。
func (c *Client) Transport() http.RoundTripper { return c.http.Transport }

// Do 执行单次请求：等待限速令牌并设置 User-Agent，不做重试。
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req)
}

// Get 请求带有线性回退重试；仅 2xx 视为成功。
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	attempts := c.retry + 1
	for i := 0; i < attempts; i++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			lastErr = fmt.Errorf("new request: %w", reqErr)
			break
		}
		resp, err := c.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("http status: %s", resp.Status)
			if resp.Body != nil {
				resp.Body.Close()
			}
		} else {
			lastErr = err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * c.retryDelay):
		}
	}
	return nil, lastErr
}

// PostForm 以 application/x-www-form-urlencoded 提交表单，单次请求，状态码由调用方判断。
func (c *Client) PostForm(ctx context.Context, url string, values url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req)
}
