// 包 logx 是对标准库 slog 的薄封装：
// - 支持级别/格式/语言/颜色配置，可选同时写入日志文件
// - 提供 pretty 输出（[INFO]/[SUCCESS]/[WARN]/[ERROR] 或中文标签）
// - 通过 Debugf/Infof/Successf/Warnf/Errorf 暴露，便于将来替换底层实现
package logx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// LevelSuccess 介于 INFO 与 WARN 之间，用于"发帖成功"等需要醒目展示的信息。
const LevelSuccess = slog.Level(2)

var (
	fileMu sync.Mutex
	file   *os.File
)

// Init 根据 level/format/locale/colorMode 初始化全局日志器，输出到标准输出。
func Init(level, format, locale, colorMode string) {
	InitWriter(os.Stdout, level, format, locale, colorMode)
}

// InitFile 与 Init 相同，但当 path 非空时额外以追加模式写入日志文件。
// 文件写入不着色；返回的 close 函数用于退出前关闭文件。
func InitFile(level, format, locale, colorMode, path string) (func() error, error) {
	if strings.TrimSpace(path) == "" {
		Init(level, format, locale, colorMode)
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	fileMu.Lock()
	file = f
	fileMu.Unlock()
	lv := parseSlogLevel(level)
	console := newHandler(os.Stdout, lv, format, locale, colorMode)
	tee := newHandler(f, lv, format, locale, "never")
	slog.SetDefault(slog.New(&multiHandler{handlers: []slog.Handler{console, tee}}))
	return func() error {
		fileMu.Lock()
		defer fileMu.Unlock()
		if file == nil {
			return nil
		}
		err := file.Close()
		file = nil
		return err
	}, nil
}

// InitWriter 将日志写入指定 writer，主要用于测试。
func InitWriter(w io.Writer, level, format, locale, colorMode string) {
	lv := parseSlogLevel(level)
	slog.SetDefault(slog.New(newHandler(w, lv, format, locale, colorMode)))
}

func newHandler(w io.Writer, lv slog.Leveler, format, locale, colorMode string) slog.Handler {
	opts := &slog.HandlerOptions{Level: lv, AddSource: false}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "pretty", "":
		return NewPrettyHandler(w, lv, locale, colorMode)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// parseSlogLevel 将字符串级别解析为 slog.Leveler。
func parseSlogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "success":
		return LevelSuccess
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "silent", "off":
		var l slog.Level = 100 // silence all
		return l
	case "info", "":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// 便捷函数：格式化并按级别输出
func Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { slog.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { slog.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { slog.Error(fmt.Sprintf(format, v...)) }

// Successf 以 SUCCESS 级别输出。
func Successf(format string, v ...any) {
	slog.Log(context.Background(), LevelSuccess, fmt.Sprintf(format, v...))
}

// PrettyHandler：人读友好的单行输出（可选彩色），支持中英文标签。
type PrettyHandler struct {
	w      io.Writer
	level  slog.Leveler
	locale string
	color  bool
	mu     *sync.Mutex
	attrs  []slog.Attr
	group  string
}

// NewPrettyHandler 创建 pretty Handler。
func NewPrettyHandler(w io.Writer, lv slog.Leveler, locale string, colorMode string) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	if locale == "" {
		locale = "en"
	}
	ph := &PrettyHandler{w: w, level: lv, locale: locale, mu: &sync.Mutex{}}
	ph.color = shouldColor(w, colorMode)
	return ph
}

// Enabled 根据配置的最低级别判定是否输出。
func (h *PrettyHandler) Enabled(_ context.Context, l slog.Level) bool {
	if ll, ok := h.level.(slog.Level); ok {
		return l >= ll && ll < 100
	}
	return true
}

// Handle 格式化输出：时间 + 等级 + 消息 + 扁平化属性
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var buf bytes.Buffer
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Format("2006-01-02 15:04:05"))
	buf.WriteString(" ")
	lvl := levelLabel(h.locale, r.Level)
	if h.color {
		lvl = colorize(lvl, r.Level)
	}
	buf.WriteString(lvl)
	buf.WriteString(" ")
	buf.WriteString(r.Message)
	attrs := make([]slog.Attr, 0, len(h.attrs))
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	if len(attrs) > 0 {
		buf.WriteString(" ")
		for i, a := range attrs {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(a.Key)
			buf.WriteString("=")
			buf.WriteString(a.Value.String())
		}
	}
	buf.WriteByte('\n')
	_, err := h.w.Write(buf.Bytes())
	return err
}

// WithAttrs 附加属性。
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &cp
}

// WithGroup 属性分组。
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	cp := *h
	if cp.group == "" {
		cp.group = name
	} else {
		cp.group += "." + name
	}
	return &cp
}

// levelLabel 根据语言返回等级标签。
func levelLabel(locale string, l slog.Level) string {
	if strings.HasPrefix(strings.ToLower(locale), "zh") {
		switch l {
		case slog.LevelDebug:
			return "[调试]"
		case slog.LevelInfo:
			return "[信息]"
		case LevelSuccess:
			return "[成功]"
		case slog.LevelWarn:
			return "[警告]"
		case slog.LevelError:
			return "[错误]"
		default:
			return fmt.Sprintf("[L%d]", l)
		}
	}
	switch l {
	case slog.LevelDebug:
		return "[DEBUG]"
	case slog.LevelInfo:
		return "[INFO]"
	case LevelSuccess:
		return "[SUCCESS]"
	case slog.LevelWarn:
		return "[WARN]"
	case slog.LevelError:
		return "[ERROR]"
	default:
		return fmt.Sprintf("[L%d]", l)
	}
}

// shouldColor 判断是否启用颜色：遵循 LOG_COLOR 与 NO_COLOR。
func shouldColor(w io.Writer, mode string) bool {
	if v := os.Getenv("NO_COLOR"); v != "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true
	case "never":
		return false
	case "auto", "":
		if f, ok := w.(*os.File); ok {
			return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
		return false
	default:
		return false
	}
}

// colorize 按等级包裹 ANSI 颜色码。
func colorize(s string, l slog.Level) string {
	code := ""
	switch l {
	case slog.LevelDebug:
		code = "90" // bright black
	case slog.LevelInfo:
		code = "36" // cyan
	case LevelSuccess:
		code = "32" // green
	case slog.LevelWarn:
		code = "33" // yellow
	case slog.LevelError:
		code = "31" // red
	default:
		code = "0"
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// multiHandler 将同一条记录分发给多个 Handler（控制台 + 文件）。
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}
