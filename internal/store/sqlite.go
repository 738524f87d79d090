// 包 store 提供显式的已回答问题索引（SQLite），包含表迁移/写入/查询/清理等操作。
// 历史文本文件仍是审计与每日配额的依据；索引只负责按结构化字段去重。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"stackbot/internal/model"
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	// modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Reset 清空索引（不删除数据库文件）。
func (s *SQLite) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM answers`); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	return nil
}

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS answers (
            site TEXT NOT NULL,
            question_id TEXT NOT NULL,
            answer_id TEXT,
            title TEXT,
            link TEXT,
            created_at TIMESTAMP,
            UNIQUE(site, question_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_answers_created ON answers(created_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// RecordAnswer 插入或更新一条回答（site+question_id 唯一）。
func (s *SQLite) RecordAnswer(ctx context.Context, a model.AnsweredQuestion) error {
	if a.Site == "" || a.QuestionID == "" {
		return errors.New("answer.site and answer.question_id required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO answers(site, question_id, answer_id, title, link, created_at)
        VALUES(?,?,?,?,?,?)
        ON CONFLICT(site, question_id) DO UPDATE SET answer_id=excluded.answer_id, title=excluded.title, link=excluded.link`,
		string(a.Site), a.QuestionID, a.AnswerID, a.Title, a.Link, nowOr(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("record answer %s/%s: %w", a.Site, a.QuestionID, err)
	}
	return nil
}

// QuestionKeys 返回索引中全部已回答问题的（站点, ID）。
func (s *SQLite) QuestionKeys(ctx context.Context) ([]model.QuestionKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT site, question_id FROM answers ORDER BY site, question_id`)
	if err != nil {
		return nil, fmt.Errorf("query question ids: %w", err)
	}
	defer rows.Close()
	var out []model.QuestionKey
	for rows.Next() {
		var k model.QuestionKey
		if err := rows.Scan(&k.Site, &k.ID); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question ids: %w", err)
	}
	return out, nil
}

// ListAnswers 返回全部回答，按 created_at 倒序。
func (s *SQLite) ListAnswers(ctx context.Context) ([]model.AnsweredQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT site, question_id, COALESCE(answer_id,''), COALESCE(title,''), COALESCE(link,''), created_at FROM answers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()
	var out []model.AnsweredQuestion
	for rows.Next() {
		var a model.AnsweredQuestion
		var site string
		var createdAt sql.NullTime
		if err := rows.Scan(&site, &a.QuestionID, &a.AnswerID, &a.Title, &a.Link, &createdAt); err != nil {
			return nil, fmt.Errorf("scan answers: %w", err)
		}
		a.Site = model.Site(site)
		if createdAt.Valid {
			a.CreatedAt = createdAt.Time
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

// CountSince 统计 since 之后写入的回答数。
func (s *SQLite) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM answers WHERE created_at >= ?`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count answers since: %w", err)
	}
	return n, nil
}

// Stats 统计汇总：总数、今日数（本地时区）、按站点分布。
func (s *SQLite) Stats(ctx context.Context) (model.Stats, error) {
	st := model.Stats{PerSite: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM answers`).Scan(&st.AnswersTotal); err != nil {
		return st, fmt.Errorf("count answers: %w", err)
	}
	now := time.Now()
	y, m, d := now.Date()
	today, err := s.CountSince(ctx, time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
	if err != nil {
		return st, err
	}
	st.AnswersToday = today
	rows, err := s.db.QueryContext(ctx, `SELECT site, COUNT(1) FROM answers GROUP BY site`)
	if err != nil {
		return st, fmt.Errorf("count per site: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var site string
		var n int
		if err := rows.Scan(&site, &n); err != nil {
			return st, fmt.Errorf("scan per site: %w", err)
		}
		st.PerSite[site] = n
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate per site: %w", err)
	}
	st.UpdatedAt = now
	return st, nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
