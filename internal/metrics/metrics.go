// 包 metrics 暴露编排器的 Prometheus 指标。使用私有 Registry，
// 仅在配置 METRICS_ADDR 时对外提供 /metrics。所有方法对 nil 接收者安全。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stackbot/internal/logx"
	"stackbot/internal/model"
)

// Fetch 结果标签取值。
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics 持有全部指标与其所在的 Registry。
type Metrics struct {
	reg *prometheus.Registry

	answersPosted      *prometheus.CounterVec
	postFailures       *prometheus.CounterVec
	generationFailures prometheus.Counter
	fetchAttempts      *prometheus.CounterVec
	rateLimited        prometheus.Counter
	cycles             prometheus.Counter
	dailyAnswers       prometheus.Gauge
}

// New 创建并注册全部指标。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		answersPosted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackbot_answers_posted_total",
			Help: "Answers posted successfully, by site",
		}, []string{"site"}),
		postFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackbot_post_failures_total",
			Help: "Answer submissions that returned no answer id, by site",
		}, []string{"site"}),
		generationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "stackbot_generation_failures_total",
			Help: "Text generation calls that failed or returned empty text",
		}),
		fetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackbot_fetch_attempts_total",
			Help: "Question fetch attempts by site and outcome",
		}, []string{"site", "outcome"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "stackbot_rate_limited_total",
			Help: "Rate-limit backoffs applied",
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "stackbot_cycles_total",
			Help: "Completed polling cycles",
		}),
		dailyAnswers: f.NewGauge(prometheus.GaugeOpts{
			Name: "stackbot_daily_answers",
			Help: "Answers recorded in the history file for the current day",
		}),
	}
}

func (m *Metrics) Posted(site model.Site) {
	if m == nil {
		return
	}
	m.answersPosted.WithLabelValues(string(site)).Inc()
}

func (m *Metrics) PostFailed(site model.Site) {
	if m == nil {
		return
	}
	m.postFailures.WithLabelValues(string(site)).Inc()
}

func (m *Metrics) GenerationFailed() {
	if m == nil {
		return
	}
	m.generationFailures.Inc()
}

func (m *Metrics) FetchAttempt(site model.Site, outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(string(site), outcome).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) CycleDone() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}

func (m *Metrics) SetDaily(n int) {
	if m == nil {
		return
	}
	m.dailyAnswers.Set(float64(n))
}

// Registry 返回底层 Registry（测试中用于 Gather）。
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler 返回 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve 在 addr 上提供 /metrics，ctx 取消后优雅关闭。
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logx.Infof("指标服务监听：%s/metrics", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
