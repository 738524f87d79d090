// 包 rules 提供问题资格判断（黑名单短语/标题长度/最低分数/锁定或关闭），
// 纯函数，无副作用；判断过程中出现异常一律视为不合格。
package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"stackbot/internal/config"
	"stackbot/internal/logx"
	"stackbot/internal/model"
)

// Filter 为资格判断所需的参数集合。
type Filter struct {
	Blacklist      []string
	MaxTitleLength int
	MinScore       int
}

// FromConfig 从配置构造 Filter；黑名单统一转为小写。
func FromConfig(c *config.Config) Filter {
	bl := make([]string, 0, len(c.BlacklistedPhrases))
	for _, p := range c.BlacklistedPhrases {
		if p = strings.TrimSpace(p); p != "" {
			bl = append(bl, strings.ToLower(p))
		}
	}
	return Filter{Blacklist: bl, MaxTitleLength: c.MaxTitleLength, MinScore: c.MinPostScore}
}

// Eligible 判断问题是否可以尝试回答。
func (f Filter) Eligible(q model.Question) bool {
	return f.Reason(q) == ""
}

// Reason 返回第一条不合格原因；合格时返回空串。
func (f Filter) Reason(q model.Question) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("检查问题资格出错：%v", r)
			reason = fmt.Sprintf("panic: %v", r)
		}
	}()
	title := strings.ToLower(q.Title)
	for _, p := range f.Blacklist {
		if p != "" && strings.Contains(title, strings.ToLower(p)) {
			return "blacklisted phrase " + p
		}
	}
	if f.MaxTitleLength > 0 && utf8.RuneCountInString(q.Title) > f.MaxTitleLength {
		return "title too long"
	}
	if q.Score < f.MinScore {
		return fmt.Sprintf("score %d below %d", q.Score, f.MinScore)
	}
	if q.Locked {
		return "locked"
	}
	if q.Closed {
		return "closed"
	}
	return ""
}
