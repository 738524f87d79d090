package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stackbot/internal/model"
)

func TestSQLite_RecordAndQuery(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -3)
	if err := s.RecordAnswer(ctx, model.AnsweredQuestion{Site: "stackoverflow", QuestionID: "10", AnswerID: "100", CreatedAt: old}); err != nil {
		t.Fatalf("record old: %v", err)
	}
	if err := s.RecordAnswer(ctx, model.AnsweredQuestion{Site: "superuser", QuestionID: "20", AnswerID: "200", Title: "t"}); err != nil {
		t.Fatalf("record new: %v", err)
	}
	// 同一问题重复写入只更新，不新增
	if err := s.RecordAnswer(ctx, model.AnsweredQuestion{Site: "superuser", QuestionID: "20", AnswerID: "201", Title: "t2"}); err != nil {
		t.Fatalf("record upd: %v", err)
	}

	// 同一 ID 在不同站点是不同的问题
	if err := s.RecordAnswer(ctx, model.AnsweredQuestion{Site: "stackoverflow", QuestionID: "20", AnswerID: "300", CreatedAt: old}); err != nil {
		t.Fatalf("record same id other site: %v", err)
	}
	keys, err := s.QuestionKeys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	var got []string
	for _, k := range keys {
		got = append(got, string(k.Site)+"/"+k.ID)
	}
	if strings.Join(got, ",") != "stackoverflow/10,stackoverflow/20,superuser/20" {
		t.Fatalf("keys = %v", got)
	}

	list, err := s.ListAnswers(ctx)
	if err != nil || len(list) != 3 {
		t.Fatalf("list: %v len=%d", err, len(list))
	}
	if list[0].QuestionID != "20" || list[0].AnswerID != "201" {
		t.Fatalf("newest first / upsert failed: %+v", list[0])
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.AnswersTotal != 3 || st.AnswersToday != 1 || st.PerSite["stackoverflow"] != 2 {
		t.Fatalf("stats mismatch: %+v", st)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if keys, _ := s.QuestionKeys(ctx); len(keys) != 0 {
		t.Fatalf("reset left %v", keys)
	}
}

func TestSQLite_RequiresKeys(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()
	if err := s.RecordAnswer(context.Background(), model.AnsweredQuestion{Site: "stackoverflow"}); err == nil {
		t.Fatal("expect error for empty question id")
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.RecordAnswer(context.Background(), model.AnsweredQuestion{Site: "stackoverflow", QuestionID: "7"})
	_ = s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	keys, _ := s2.QuestionKeys(context.Background())
	if len(keys) != 1 || keys[0] != (model.QuestionKey{Site: "stackoverflow", ID: "7"}) {
		t.Fatalf("keys after reopen = %v", keys)
	}
}
