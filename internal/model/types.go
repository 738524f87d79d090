// 包 model 定义核心数据模型（站点/问题/回答记录/统计/导出结构）。
package model

import "time"

// Site 为目标问答社区标识（如 stackoverflow、superuser），大小写敏感。
type Site string

// QuestionKey 标识站点内的一个问题；问题 ID 只在站点内唯一。
type QuestionKey struct {
	Site Site
	ID   string
}

// Question 为从站点抓取的候选问题，只读。
type Question struct {
	ID     string `json:"id"`
	Site   Site   `json:"site"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Score  int    `json:"score"`
	Locked bool   `json:"locked"`
	Closed bool   `json:"closed"`
	Link   string `json:"link,omitempty"`
}

// CommentRecord 为历史文件中的一条回答记录（只追加，不修改）。
type CommentRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Site         Site      `json:"site"`
	TitleExcerpt string    `json:"title_excerpt"`
	AnswerLink   string    `json:"answer_link"`
}

// AnsweredQuestion 为去重索引中的一行：显式记录问题 ID，而非从文本链接中扫描。
type AnsweredQuestion struct {
	Site       Site      `json:"site"`
	QuestionID string    `json:"question_id"`
	AnswerID   string    `json:"answer_id"`
	Title      string    `json:"title"`
	Link       string    `json:"link"`
	CreatedAt  time.Time `json:"created_at"`
}

// User 为 /me 返回的账号信息（仅保留启动校验需要的字段）。
type User struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Reputation  int    `json:"reputation"`
}

// Stats 为索引统计信息。
type Stats struct {
	AnswersTotal int            `json:"answers_total"`
	AnswersToday int            `json:"answers_today"`
	PerSite      map[string]int `json:"per_site"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Export 为导出 JSON 的顶层结构。
type Export struct {
	Stats   Stats              `json:"stats"`
	Answers []AnsweredQuestion `json:"answers"`
}
