// 包 history 管理只追加的回答历史文件：
// - 每次成功发帖追加一条带时间戳的记录，写入后立即 fsync
// - 从历史中重建去重集合与当天计数，进程重启后依然成立
package history

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stackbot/internal/model"
)

const (
	timeLayout   = "2006-01-02 15:04:05"
	excerptRunes = 50
)

// StorageError 表示历史文件不可写/不可读（磁盘、权限等）。
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store 为历史文件的读写入口。单进程单写者，无需加锁。
type Store struct {
	path string
	now  func() time.Time
}

// Open 返回指向 path 的 Store；now 为空时使用 time.Now。
func Open(path string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{path: path, now: now}
}

// Path 返回历史文件路径。
func (s *Store) Path() string { return s.path }

// Initialize 在文件不存在时创建并写入表头；已存在则不做任何修改。
func (s *Store) Initialize() (created bool, err error) {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, &StorageError{Op: "create", Path: s.path, Err: err}
	}
	defer f.Close()
	header := "🤖 Stack Exchange Bot Comment History 🤖\n" +
		"================================\n" +
		"Bot Started: " + s.now().Format(timeLayout) + "\n" +
		"================================\n"
	if _, err := f.WriteString(header); err != nil {
		return true, &StorageError{Op: "write header", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return true, &StorageError{Op: "sync", Path: s.path, Err: err}
	}
	return true, nil
}

// Append 追加一条记录：空行 + "[时间] 站点 - 标题前 50 字..." + 换行 + 链接。
// 返回前 fsync，保证记录对后续读取（包括重启后的进程）立即可见。
func (s *Store) Append(site model.Site, questionTitle, answerLink string) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()
	rec := fmt.Sprintf("\n[%s] %s - %s...\n%s\n", s.now().Format(timeLayout), site, excerpt(questionTitle), answerLink)
	if _, err := f.WriteString(rec); err != nil {
		return &StorageError{Op: "append", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &StorageError{Op: "sync", Path: s.path, Err: err}
	}
	return nil
}

// LoadDedupSet 扫描全部行，仅从包含 stackexchange.com/q/ 或 stackoverflow.com/q/ 的行中
// 取出 /q/ 之后的路径段作为问题 ID。
//
// 注意：Append 只写入回答链接（/a/{id}），不含 /q/，因此本函数通常得到空集合；
// 跨重启的去重由 store 包中的显式索引负责。此处保持该行为不变。
func (s *Store) LoadDedupSet() (*DedupSet, error) {
	set := NewDedupSet()
	err := s.scan(func(line string) {
		if !strings.Contains(line, "stackexchange.com/q/") && !strings.Contains(line, "stackoverflow.com/q/") {
			return
		}
		rest := line[strings.Index(line, "/q/")+len("/q/"):]
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		if id := strings.TrimSpace(rest); id != "" {
			set.Add(id)
		}
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// CountToday 统计时间戳日期等于今天（本地时区）的记录数；格式错误的行直接跳过。
func (s *Store) CountToday() (int, error) {
	now := s.now()
	y, m, d := now.Date()
	count := 0
	err := s.scan(func(line string) {
		ts, ok := parseStamp(line, now.Location())
		if !ok {
			return
		}
		ty, tm, td := ts.Date()
		if ty == y && tm == m && td == d {
			count++
		}
	})
	return count, err
}

// Records 解析完整记录（时间戳行 + 下一行链接），用于统计展示。
func (s *Store) Records() ([]model.CommentRecord, error) {
	var out []model.CommentRecord
	var pending *model.CommentRecord
	loc := s.now().Location()
	err := s.scan(func(line string) {
		if pending != nil {
			pending.AnswerLink = strings.TrimSpace(line)
			out = append(out, *pending)
			pending = nil
			return
		}
		ts, ok := parseStamp(line, loc)
		if !ok {
			return
		}
		rest := strings.TrimSpace(line[len("[2006-01-02 15:04:05]"):])
		site, title, _ := strings.Cut(rest, " - ")
		pending = &model.CommentRecord{
			Timestamp:    ts,
			Site:         model.Site(site),
			TitleExcerpt: strings.TrimSuffix(title, "..."),
		}
	})
	return out, err
}

// maxLineBytes 为单行上限；超长行（损坏内容）整行跳过，不影响后续记录。
const maxLineBytes = 1 << 20

// scan 逐行读取；文件不存在视为空历史。
func (s *Store) scan(fn func(line string)) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &StorageError{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 64*1024)
	var buf []byte
	skipping := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &StorageError{Op: "read", Path: s.path, Err: err}
		}
		if skipping {
			skipping = isPrefix
			continue
		}
		if len(buf)+len(chunk) > maxLineBytes {
			buf = buf[:0]
			skipping = isPrefix
			continue
		}
		buf = append(buf, chunk...)
		if isPrefix {
			continue
		}
		fn(string(buf))
		buf = buf[:0]
	}
}

// parseStamp 解析行首的 [YYYY-MM-DD HH:MM:SS]。
func parseStamp(line string, loc *time.Location) (time.Time, bool) {
	if len(line) < 21 || line[0] != '[' || line[20] != ']' {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(timeLayout, line[1:20], loc)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// excerpt 按字符（而非字节）截取标题前 50 个字符。
func excerpt(title string) string {
	r := []rune(title)
	if len(r) > excerptRunes {
		r = r[:excerptRunes]
	}
	return string(r)
}
