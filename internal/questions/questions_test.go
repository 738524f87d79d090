package questions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stackbot/internal/fetch"
	"stackbot/internal/history"
	"stackbot/internal/model"
)

type fakeLister struct {
	calls int
	fails int
	items []model.Question
}

func (f *fakeLister) Questions(_ context.Context, _ model.Site, _ int) ([]model.Question, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("status 503")
	}
	return f.items, nil
}

type sleepRecorder struct{ waits []time.Duration }

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func TestAPISource_ExactAttemptsOnSustainedFailure(t *testing.T) {
	for _, attempts := range []int{1, 3, 5} {
		api := &fakeLister{fails: 1 << 30}
		rec := &sleepRecorder{}
		src := &APISource{API: api, Retry: Retry{Attempts: attempts, Delay: 30 * time.Second, Sleep: rec.sleep}}
		qs, ok := src.Fetch(context.Background(), "stackoverflow", nil, 10)
		if ok || qs != nil {
			t.Fatalf("attempts=%d: expect no data, got ok=%v qs=%v", attempts, ok, qs)
		}
		if api.calls != attempts {
			t.Fatalf("calls = %d, want %d", api.calls, attempts)
		}
		if len(rec.waits) != attempts-1 {
			t.Fatalf("waits = %d, want %d", len(rec.waits), attempts-1)
		}
		for _, w := range rec.waits {
			if w != 30*time.Second {
				t.Fatalf("wait = %v", w)
			}
		}
	}
}

func TestAPISource_RecoversAndExcludes(t *testing.T) {
	api := &fakeLister{fails: 2, items: []model.Question{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	rec := &sleepRecorder{}
	src := &APISource{API: api, Retry: Retry{Attempts: 3, Delay: time.Second, Sleep: rec.sleep}}
	qs, ok := src.Fetch(context.Background(), "superuser", history.NewDedupSet("2"), 10)
	if !ok {
		t.Fatal("expect data on third attempt")
	}
	if len(qs) != 2 || qs[0].ID != "1" || qs[1].ID != "3" {
		t.Fatalf("qs = %+v", qs)
	}
}

func TestAPISource_CancelDuringRetryWait(t *testing.T) {
	api := &fakeLister{fails: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &sleepRecorder{}
	src := &APISource{API: api, Retry: Retry{Attempts: 3, Sleep: rec.sleep}}
	if _, ok := src.Fetch(ctx, "stackoverflow", nil, 10); ok {
		t.Fatal("expect no data")
	}
	if api.calls != 1 {
		t.Fatalf("calls = %d, want 1 after cancellation", api.calls)
	}
}

type fakeHydrator struct {
	got   []string
	score map[string]int
}

func (f *fakeHydrator) QuestionsByID(_ context.Context, site model.Site, ids []string) ([]model.Question, error) {
	f.got = append([]string(nil), ids...)
	var out []model.Question
	for _, id := range ids {
		out = append(out, model.Question{ID: id, Site: site, Title: "t" + id, Score: f.score[id]})
	}
	return out, nil
}

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Top questions</title>
  <entry><id>https://math.stackexchange.com/q/101</id><title>a</title><link rel="alternate" href="https://math.stackexchange.com/questions/101/a" /></entry>
  <entry><id>https://math.stackexchange.com/q/102</id><title>b</title><link rel="alternate" href="https://math.stackexchange.com/questions/102/b" /></entry>
  <entry><id>https://math.stackexchange.com/q/103</id><title>c</title><link rel="alternate" href="https://math.stackexchange.com/questions/103/c" /></entry>
  <entry><id>tag:other</id><title>not a question</title><link rel="alternate" href="https://math.stackexchange.com/users/5" /></entry>
</feed>`

func TestFeedSource_HydratesAndSortsByScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/math/feeds" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()
	cl, _ := fetch.New(fetch.Options{})
	hyd := &fakeHydrator{score: map[string]int{"101": 1, "103": 9}}
	src := &FeedSource{
		HTTP:    cl,
		API:     hyd,
		Retry:   Retry{Attempts: 1},
		FeedURL: func(s model.Site) string { return srv.URL + "/" + string(s) + "/feeds" },
	}
	qs, ok := src.Fetch(context.Background(), "math", history.NewDedupSet("102"), 10)
	if !ok {
		t.Fatal("expect data")
	}
	if strings.Join(hyd.got, ",") != "101,103" {
		t.Fatalf("hydrated ids = %v", hyd.got)
	}
	if len(qs) != 2 || qs[0].ID != "103" || qs[1].ID != "101" {
		t.Fatalf("qs = %+v", qs)
	}
}

func TestFeedSource_BrokenFeedIsNoData(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte("<html>not a feed</html>"))
	}))
	defer srv.Close()
	cl, _ := fetch.New(fetch.Options{})
	rec := &sleepRecorder{}
	src := &FeedSource{HTTP: cl, API: &fakeHydrator{}, Retry: Retry{Attempts: 2, Sleep: rec.sleep},
		FeedURL: func(model.Site) string { return srv.URL }}
	if _, ok := src.Fetch(context.Background(), "math", nil, 10); ok {
		t.Fatal("expect no data")
	}
	if calls != 2 || len(rec.waits) != 1 {
		t.Fatalf("calls=%d waits=%d", calls, len(rec.waits))
	}
}

func TestQuestionID(t *testing.T) {
	cases := map[string]string{
		"https://stackoverflow.com/questions/12345/how-to":     "12345",
		"https://math.stackexchange.com/q/42":                  "42",
		"https://superuser.com/q/7/123":                        "7",
		"https://stackoverflow.com/questions/99?noredirect=1": "99",
	}
	for link, want := range cases {
		got, ok := QuestionID(link)
		if !ok || got != want {
			t.Fatalf("%s => %q %v, want %q", link, got, ok, want)
		}
	}
	for _, bad := range []string{"https://stackoverflow.com/a/5", "https://stackoverflow.com/users/1/x", ""} {
		if _, ok := QuestionID(bad); ok {
			t.Fatalf("%q should not match", bad)
		}
	}
}

func TestDefaultFeedURL(t *testing.T) {
	if got := DefaultFeedURL("stackoverflow"); got != "https://stackoverflow.com/feeds" {
		t.Fatalf("got %s", got)
	}
	if got := DefaultFeedURL("math"); got != "https://math.stackexchange.com/feeds" {
		t.Fatalf("got %s", got)
	}
}

func TestBodyText(t *testing.T) {
	raw := "<p>I have   this\ncode:</p>\n<pre><code>for i := 0; i &lt; 3; i++ {\n\tfmt.Println(i)\n}\n</code></pre>\n<p>Why does it <em>fail</em>?</p>"
	want := "I have this code:\n\n```\nfor i := 0; i < 3; i++ {\n\tfmt.Println(i)\n}\n```\n\nWhy does it fail?"
	if got := BodyText(raw); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if got := BodyText("plain text "); got != "plain text" {
		t.Fatalf("plain = %q", got)
	}
	if got := BodyText("hello <b>world</b><br>again"); got != "hello world again" {
		t.Fatalf("inline = %q", got)
	}
}
