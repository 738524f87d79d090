// 包 export 负责导出：将回答索引写为 JSON（统计 + 回答列表）。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"stackbot/internal/model"
)

// Source 为导出所需的查询能力（*store.SQLite 实现）。
type Source interface {
	ListAnswers(ctx context.Context) ([]model.AnsweredQuestion, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// maxExportAnswers 为导出上限：按时间倒序仅保留最新的记录。
const maxExportAnswers = 500

// ToJSON 查询统计/回答并写入 JSON 文件（带缩进格式）。
func ToJSON(ctx context.Context, s Source, path string) error {
	answers, err := s.ListAnswers(ctx)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if len(answers) > maxExportAnswers {
		answers = answers[:maxExportAnswers]
	}
	if answers == nil {
		answers = []model.AnsweredQuestion{}
	}
	out := model.Export{Stats: stats, Answers: answers}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}
