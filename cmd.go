package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stackbot/internal/answer"
	"stackbot/internal/bot"
	"stackbot/internal/config"
	"stackbot/internal/export"
	"stackbot/internal/fetch"
	"stackbot/internal/history"
	"stackbot/internal/logx"
	"stackbot/internal/metrics"
	"stackbot/internal/model"
	"stackbot/internal/questions"
	"stackbot/internal/rules"
	"stackbot/internal/sites"
	"stackbot/internal/stackexchange"
	"stackbot/internal/store"
)

const version = "1.0.0"

type options struct {
	configPath string
	envFile    string
	exportPath string
}

// execute 解析参数并执行命令，返回进程退出码。
func execute(ctx context.Context, args []string) int {
	opts := &options{}
	root := newRootCmd(opts)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		logx.Infof("收到中断信号，机器人已停止")
		return 0
	default:
		logx.Errorf("%v", err)
		return 1
	}
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "stackbot",
		Short:         "Answers top-voted questions on Stack Exchange sites on a slow periodic cycle",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "settings.yaml", "path to settings.yaml")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to .env with credentials (optional)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Verify setup and run the answer loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts)
		},
	}
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check configuration, credentials and account, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(opts, true)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.verifyAccount(cmd.Context()); err != nil {
				return err
			}
			logx.Successf("校验通过")
			return nil
		},
	}
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print today's answer count and index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(opts, false)
			if err != nil {
				return err
			}
			defer a.close()
			return a.printStats(cmd.Context())
		},
	}
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the answer index as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(opts, false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := export.ToJSON(cmd.Context(), a.index, opts.exportPath); err != nil {
				return fmt.Errorf("export json: %w", err)
			}
			logx.Infof("已导出 %s", opts.exportPath)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&opts.exportPath, "out", "data.json", "export json path")

	root.AddCommand(runCmd, verifyCmd, statsCmd, exportCmd)
	return root
}

// app 汇总启动阶段构造的依赖，全部显式传递，不使用包级全局变量。
type app struct {
	cfg      *config.Config
	creds    config.Credentials
	http     *fetch.Client
	api      *stackexchange.Client
	hist     *history.Store
	index    *store.SQLite
	metrics  *metrics.Metrics
	closeLog func() error
}

// setup 加载配置、初始化日志并构造依赖；requireCreds 为 true 时缺少任何凭据或站点列表都会失败。
func setup(opts *options, requireCreds bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	closeLog, err := logx.InitFile(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("init log: %w", err)
	}
	creds, err := config.LoadCredentials(opts.envFile, cfg.Generator.Provider)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	if requireCreds {
		if err := config.VerifySetup(cfg, creds); err != nil {
			var me *config.MissingError
			if errors.As(err, &me) {
				logx.Errorf("缺少以下必需项：")
				for _, it := range me.Items {
					logx.Errorf("- %s", it)
				}
			}
			_ = closeLog()
			return nil, err
		}
	}
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:         cfg.Proxy.HTTP,
		ProxyHTTPS:        cfg.Proxy.HTTPS,
		Timeout:           cfg.HTTPTimeout(),
		UserAgent:         creds.UserAgent,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
	})
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("http client: %w", err)
	}
	index, err := store.OpenSQLite(cfg.Database.DSN)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &app{
		cfg:      cfg,
		creds:    creds,
		http:     cl,
		api:      stackexchange.New(cfg.API.BaseURL, creds.Key, creds.AccessToken, cl),
		hist:     history.Open(cfg.HistoryFile, nil),
		index:    index,
		metrics:  metrics.New(),
		closeLog: closeLog,
	}, nil
}

func (a *app) close() {
	if err := a.index.Close(); err != nil {
		logx.Warnf("关闭数据库失败：%v", err)
	}
	_ = a.closeLog()
}

// verifyAccount 通过 /me 确认凭据有效，并检查最低声望。
func (a *app) verifyAccount(ctx context.Context) error {
	site := a.cfg.API.VerifySite
	u, err := a.api.Me(ctx, model.Site(site))
	if err != nil {
		return fmt.Errorf("verify account on %s: %w", site, err)
	}
	logx.Infof("账号：%s，声望：%d", u.DisplayName, u.Reputation)
	if u.Reputation < a.cfg.MinReputation {
		return fmt.Errorf("account reputation %d below MIN_REPUTATION %d", u.Reputation, a.cfg.MinReputation)
	}
	return nil
}

func (a *app) printStats(ctx context.Context) error {
	today, err := a.hist.CountToday()
	if err != nil {
		return err
	}
	records, err := a.hist.Records()
	if err != nil {
		return err
	}
	dedup, err := a.hist.LoadDedupSet()
	if err != nil {
		return err
	}
	keys, err := a.index.QuestionKeys(ctx)
	if err != nil {
		return err
	}
	dedup.MergeKeys(keys...)
	st, err := a.index.Stats(ctx)
	if err != nil {
		return err
	}
	logx.Infof("历史文件：%s，记录 %d 条，今日 %d/%d", a.hist.Path(), len(records), today, a.cfg.MaxDailyComments)
	logx.Infof("去重集合：%d 个问题", dedup.Len())
	logx.Infof("回答索引：总计 %d，今日 %d", st.AnswersTotal, st.AnswersToday)
	for site, n := range st.PerSite {
		logx.Infof("- %s：%d", site, n)
	}
	return nil
}

func printBanner() {
	logx.Infof("==============================================")
	logx.Infof("  Stack Exchange Bot")
	logx.Infof("  Version: %s", version)
	logx.Infof("  Started at: %s", time.Now().Format("2006-01-02 15:04:05"))
	logx.Infof("==============================================")
}

// runBot 为主命令：校验 → 初始化历史 → 进入循环；指标服务（可选）与编排器并行运行。
func runBot(ctx context.Context, opts *options) error {
	a, err := setup(opts, true)
	if err != nil {
		return err
	}
	defer a.close()
	printBanner()
	logx.Infof("机器人初始化开始")

	if err := a.verifyAccount(ctx); err != nil {
		return err
	}
	if created, err := a.hist.Initialize(); err != nil {
		logx.Errorf("创建历史文件失败：%v", err)
	} else if created {
		logx.Successf("已创建新的历史文件：%s", a.hist.Path())
	}

	gen, err := answer.New(ctx, a.cfg.Generator, a.creds.GeneratorKey(), 0, a.http.Transport())
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	retry := questions.Retry{
		Attempts: a.cfg.MaxRetries,
		Delay:    a.cfg.FetchRetryDelay(),
		Metrics:  a.metrics,
	}
	var source questions.Source = &questions.APISource{API: a.api, Retry: retry}
	if a.cfg.QuestionSource == "feed" {
		source = &questions.FeedSource{HTTP: a.http, API: a.api, Retry: retry}
	}
	runner := bot.New(bot.Deps{
		Config:    a.cfg,
		History:   a.hist,
		Index:     a.index,
		Sites:     sites.Provider{Path: a.cfg.SitesFile},
		Source:    source,
		Filter:    rules.FromConfig(a.cfg),
		Generator: gen,
		Poster:    a.api,
		Metrics:   a.metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error { return a.metrics.Serve(gctx, a.cfg.MetricsAddr) })
	}
	return g.Wait()
}
