package history

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stackbot/internal/model"
)

func fixedClock(ts string) func() time.Time {
	t, err := time.ParseInLocation(timeLayout, ts, time.Local)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestInitialize_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comment_history.txt")
	s := Open(path, fixedClock("2026-10-17 08:00:00"))
	created, err := s.Initialize()
	if err != nil || !created {
		t.Fatalf("first init: created=%v err=%v", created, err)
	}
	if err := s.Append("stackoverflow", "How do I exit vim", "https://stackoverflow.com/a/1"); err != nil {
		t.Fatalf("append: %v", err)
	}
	before, _ := os.ReadFile(path)
	created, err = s.Initialize()
	if err != nil || created {
		t.Fatalf("second init: created=%v err=%v", created, err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatalf("initialize must not rewrite existing content")
	}
	if !strings.HasPrefix(string(after), "🤖 Stack Exchange Bot Comment History 🤖\n") {
		t.Fatalf("header missing: %q", string(after))
	}
}

func TestAppend_FormatAndExcerpt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	s := Open(path, fixedClock("2026-10-17 09:30:00"))
	title := strings.Repeat("é", 60)
	if err := s.Append("superuser", title, "https://superuser.com/a/42"); err != nil {
		t.Fatalf("append: %v", err)
	}
	b, _ := os.ReadFile(path)
	want := "\n[2026-10-17 09:30:00] superuser - " + strings.Repeat("é", 50) + "...\nhttps://superuser.com/a/42\n"
	if string(b) != want {
		t.Fatalf("record = %q\nwant     %q", string(b), want)
	}
}

func TestAppend_UnwritableIsStorageError(t *testing.T) {
	// 目录路径不能作为文件打开
	s := Open(t.TempDir(), nil)
	err := s.Append("stackoverflow", "t", "l")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expect StorageError, got %v", err)
	}
}

func TestCountToday_SkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	content := strings.Join([]string{
		"🤖 Stack Exchange Bot Comment History 🤖",
		"================================",
		"Bot Started: 2026-10-17 00:00:01",
		"",
		"[2026-10-17 01:00:00] stackoverflow - a...",
		"https://stackoverflow.com/a/1",
		"[2026-10-16 23:59:59] stackoverflow - yesterday...",
		"https://stackoverflow.com/a/2",
		"[2026-10-17 garbage] broken",
		"[2026-13-45 99:99:99] impossible date",
		"[2026-10-17 23:59:59] serverfault - b...",
		"https://serverfault.com/a/3",
		"[not a stamp at all]",
		"\x00\x01 binary junk [ ]",
	}, "\n")
	_ = os.WriteFile(path, []byte(content), 0644)
	s := Open(path, fixedClock("2026-10-17 12:00:00"))
	n, err := s.CountToday()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestCountToday_OverlongLineIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	content := "[2026-10-17 01:00:00] stackoverflow - a...\nhttps://stackoverflow.com/q/10\n" +
		"[2026-10-17 02:00:00] " + strings.Repeat("x", 2<<20) + "\n" +
		"[2026-10-17 03:00:00] math - b...\nhttps://math.stackexchange.com/q/20\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := Open(path, fixedClock("2026-10-17 12:00:00"))
	n, err := s.CountToday()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	set, err := s.LoadDedupSet()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := strings.Join(set.IDs(), ","); got != "10,20" {
		t.Fatalf("ids = %s, want 10,20", got)
	}
}

func TestCountToday_MatchesAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	day1 := Open(path, fixedClock("2026-10-16 10:00:00"))
	_, _ = day1.Initialize()
	for i := 0; i < 3; i++ {
		_ = day1.Append("stackoverflow", "q", "https://stackoverflow.com/a/1")
	}
	day2 := Open(path, fixedClock("2026-10-17 10:00:00"))
	for i := 0; i < 2; i++ {
		_ = day2.Append("stackoverflow", "q", "https://stackoverflow.com/a/2")
	}
	if n, _ := day2.CountToday(); n != 2 {
		t.Fatalf("today = %d, want 2", n)
	}
	if n, _ := day1.CountToday(); n != 3 {
		t.Fatalf("yesterday = %d, want 3", n)
	}
}

func TestCountToday_MissingFile(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "none.txt"), nil)
	n, err := s.CountToday()
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestLoadDedupSet_OnlyQuestionLinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	content := strings.Join([]string{
		"[2026-10-17 01:00:00] stackoverflow - a...",
		"https://stackoverflow.com/a/111",
		"https://stackoverflow.com/q/222/some-slug",
		"https://math.stackexchange.com/q/333",
		"https://example.com/q/444/not-tracked",
		"https://superuser.com/a/555",
	}, "\n")
	_ = os.WriteFile(path, []byte(content), 0644)
	s := Open(path, nil)
	set, err := s.LoadDedupSet()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := strings.Join(set.IDs(), ","); got != "222,333" {
		t.Fatalf("ids = %s, want 222,333", got)
	}
}

func TestLoadDedupSet_AnswerLinksContributeNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	s := Open(path, nil)
	_, _ = s.Initialize()
	_ = s.Append("stackoverflow", "q", "https://stackoverflow.com/a/999")
	set, err := s.LoadDedupSet()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 0 {
		t.Fatalf("answer links must not produce keys, got %v", set.IDs())
	}
}

func TestLoadDedupSet_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	_ = os.WriteFile(path, []byte("https://stackoverflow.com/q/1/x\nhttps://unix.stackexchange.com/q/2\n"), 0644)
	s := Open(path, nil)
	a, _ := s.LoadDedupSet()
	b, _ := s.LoadDedupSet()
	if strings.Join(a.IDs(), ",") != strings.Join(b.IDs(), ",") {
		t.Fatalf("reload differs: %v vs %v", a.IDs(), b.IDs())
	}
}

func TestRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	s := Open(path, fixedClock("2026-10-17 10:00:00"))
	_, _ = s.Initialize()
	_ = s.Append("askubuntu", "Why apt is slow", "https://askubuntu.com/a/7")
	recs, err := s.Records()
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %+v", recs)
	}
	r := recs[0]
	if r.Site != "askubuntu" || r.TitleExcerpt != "Why apt is slow" || r.AnswerLink != "https://askubuntu.com/a/7" {
		t.Fatalf("record = %+v", r)
	}
}

func TestDedupSet(t *testing.T) {
	s := NewDedupSet("3", "1")
	s.Merge("2", "1", "")
	if s.Len() != 3 || !s.Has("2") || s.Has("") {
		t.Fatalf("set = %v", s.IDs())
	}
	var nilSet *DedupSet
	if nilSet.Has("1") || nilSet.Len() != 0 {
		t.Fatal("nil set should be empty")
	}
}

func TestDedupSet_ScopedBySite(t *testing.T) {
	s := NewDedupSet("7")
	s.MergeKeys(model.QuestionKey{Site: "stackoverflow", ID: "42"})
	s.AddFor("superuser", "9")
	switch {
	case !s.HasFor("stackoverflow", "42"):
		t.Fatal("stackoverflow/42 should be present")
	case s.HasFor("superuser", "42"):
		t.Fatal("superuser/42 is a different question")
	case !s.HasFor("superuser", "9") || s.HasFor("askubuntu", "9"):
		t.Fatal("AddFor must be site scoped")
	case !s.HasFor("askubuntu", "7"):
		t.Fatal("bare ids apply to every site")
	case s.Len() != 3:
		t.Fatalf("len = %d, want 3", s.Len())
	}
	var nilSet *DedupSet
	if nilSet.HasFor("stackoverflow", "1") {
		t.Fatal("nil set should be empty")
	}
}
