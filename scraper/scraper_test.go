package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-bible/canon"
	"github.com/aluiziolira/go-scrape-bible/config"
	"github.com/aluiziolira/go-scrape-bible/extract"
	"github.com/aluiziolira/go-scrape-bible/models"
	"github.com/aluiziolira/go-scrape-bible/pipeline"
)

// memWriter collects chapters in memory for scrape assertions.
type memWriter struct {
	mu       sync.Mutex
	chapters []*models.Chapter
}

func (w *memWriter) Write(chapters []*models.Chapter) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chapters = append(w.chapters, chapters...)
	return nil
}

func (w *memWriter) Close() error    { return nil }
func (w *memWriter) Validate() error { return nil }

func (w *memWriter) All() []*models.Chapter {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*models.Chapter, len(w.chapters))
	copy(out, w.chapters)
	return out
}

func testScraperConfig(book string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Book = book
	cfg.Parallelism = 5
	cfg.Timeout = 5 * time.Second
	return cfg
}

// versePage builds a minimal Greek verse page with a unique translation text.
func versePage(text string) string {
	return `<html><body><div id="par">` +
		`<span class="versiontext"><a href="#">English Standard Version</a></span>` + text + `<br>` +
		`<span class="p"></span></div>` +
		`<div><div class="vheading">Greek Texts Analysis</div>` +
		`<span class="word">the word</span><br>` +
		`<span class="grk">λόγος</span><br>` +
		`<span class="translit">(logos)</span><br>` +
		`<span class="parse">Noun</span><br>` +
		`<span class="str"><a href="/greek/strongs_3056.htm">3056</a></span> ` +
		`<span class="str2">a word</span><br></div>` +
		`</body></html>`
}

// mockBook registers a responder for every verse of a single-chapter book.
// Entries in overrides replace the default verse-page responder.
func mockBook(t *testing.T, s *Scraper, table *canon.Table, book string, overrides map[int]httpmock.Responder) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	s.collector.WithTransport(transport)

	verses, err := table.VerseCount(book, 1)
	if err != nil {
		t.Fatalf("verse count: %v", err)
	}

	for v := 1; v <= verses; v++ {
		ref := canon.Ref{Book: book, Chapter: 1, Verse: v}
		responder, ok := overrides[v]
		if !ok {
			responder = httpmock.NewStringResponder(200, versePage(fmt.Sprintf("Verse %d text.", v)))
		}
		transport.RegisterResponder("GET", ref.URL("https://biblehub.com"), responder)
	}
}

func runScrape(t *testing.T, cfg *config.Config, overrides map[int]httpmock.Responder) (*models.ScrapeResult, []*models.Chapter) {
	t.Helper()

	table := canon.Load()
	s, err := New(cfg, table)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	mockBook(t, s, table, cfg.Book, overrides)

	writer := &memWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("pipeline close: %v", err)
	}
	return result, writer.All()
}

func TestScrapeSingleBook(t *testing.T) {
	result, chapters := runScrape(t, testScraperConfig("2_john"), nil)

	if result.VerseCount != 13 {
		t.Fatalf("verse count=%d, want 13", result.VerseCount)
	}
	if result.ChapterCount != 1 {
		t.Fatalf("chapter count=%d, want 1", result.ChapterCount)
	}
	if result.ErrorCount != 0 {
		t.Fatalf("error count=%d, want 0 (by type: %v)", result.ErrorCount, result.ErrorsByType)
	}
	if len(chapters) != 1 {
		t.Fatalf("written chapters=%d, want 1", len(chapters))
	}

	chapter := chapters[0]
	if chapter.Book != "2_john" || chapter.Chapter != 1 {
		t.Fatalf("chapter identity=%s/%d", chapter.Book, chapter.Chapter)
	}
	if len(chapter.Verses) != 13 {
		t.Fatalf("verses=%d, want 13", len(chapter.Verses))
	}
	for i, verse := range chapter.Verses {
		if verse.Verse != i+1 {
			t.Fatalf("verse order violated at position %d: %d", i, verse.Verse)
		}
		wantText := fmt.Sprintf("Verse %d text.", i+1)
		if verse.Translations[0].Text != wantText {
			t.Fatalf("verse %d text=%q, want %q", i+1, verse.Translations[0].Text, wantText)
		}
		if verse.OriginalWords[0].StrongsNumber != "3056" {
			t.Fatalf("verse %d strongs=%q", i+1, verse.OriginalWords[0].StrongsNumber)
		}
	}
}

func TestScrapeRecordsMissingVerse(t *testing.T) {
	result, chapters := runScrape(t, testScraperConfig("3_john"), map[int]httpmock.Responder{
		5: httpmock.NewStringResponder(404, "not found"),
	})

	if result.VerseCount != 13 {
		t.Fatalf("verse count=%d, want 13", result.VerseCount)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures=%d, want 1", len(result.Failures))
	}
	failure := result.Failures[0]
	if failure.Book != "3_john" || failure.Chapter != 1 || failure.Verse != 5 {
		t.Fatalf("failure identity=%+v", failure)
	}
	if failure.Category != "not_found" {
		t.Fatalf("failure category=%q, want not_found", failure.Category)
	}
	if result.ErrorsByType["not_found"] != 1 {
		t.Fatalf("errors by type=%v", result.ErrorsByType)
	}

	// The chapter still completes without the missing verse.
	if len(chapters) != 1 {
		t.Fatalf("written chapters=%d, want 1", len(chapters))
	}
	if len(chapters[0].Verses) != 13 {
		t.Fatalf("verses=%d, want 13", len(chapters[0].Verses))
	}
	for _, verse := range chapters[0].Verses {
		if verse.Verse == 5 {
			t.Fatalf("missing verse present in output")
		}
	}
}

func TestScrapeRecordsExtractionFailure(t *testing.T) {
	result, chapters := runScrape(t, testScraperConfig("2_john"), map[int]httpmock.Responder{
		3: httpmock.NewStringResponder(200, "<html><body><p>down for maintenance</p></body></html>"),
	})

	if result.VerseCount != 12 {
		t.Fatalf("verse count=%d, want 12", result.VerseCount)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures=%d, want 1", len(result.Failures))
	}
	failure := result.Failures[0]
	if failure.Book != "2_john" || failure.Chapter != 1 || failure.Verse != 3 {
		t.Fatalf("failure identity=%+v", failure)
	}
	if failure.Category != "extraction" {
		t.Fatalf("failure category=%q, want extraction", failure.Category)
	}
	if result.ErrorsByType["extraction"] != 1 {
		t.Fatalf("errors by type=%v", result.ErrorsByType)
	}

	if len(chapters) != 1 {
		t.Fatalf("written chapters=%d, want 1", len(chapters))
	}
	if len(chapters[0].Verses) != 12 {
		t.Fatalf("verses=%d, want 12", len(chapters[0].Verses))
	}
	for _, verse := range chapters[0].Verses {
		if verse.Verse == 3 {
			t.Fatalf("unextractable verse present in output")
		}
	}
}

func TestRetryExhaustionStillCompletesChapter(t *testing.T) {
	cfg := testScraperConfig("jude")
	cfg.MaxRetries = 2
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.RetryBackoffMax = 50 * time.Millisecond

	result, chapters := runScrape(t, cfg, map[int]httpmock.Responder{
		5: httpmock.NewStringResponder(500, "server error"),
	})

	// The run must wait out pending retry timers: the chapter still gets
	// emitted and the exhausted verse is recorded, never silently dropped.
	if len(chapters) != 1 {
		t.Fatalf("written chapters=%d, want 1", len(chapters))
	}
	if len(chapters[0].Verses) != 24 {
		t.Fatalf("verses=%d, want 24", len(chapters[0].Verses))
	}
	for _, verse := range chapters[0].Verses {
		if verse.Verse == 5 {
			t.Fatalf("failed verse present in output")
		}
	}

	if result.VerseCount != 24 {
		t.Fatalf("verse count=%d, want 24", result.VerseCount)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures=%d, want 1", len(result.Failures))
	}
	failure := result.Failures[0]
	if failure.Book != "jude" || failure.Chapter != 1 || failure.Verse != 5 {
		t.Fatalf("failure identity=%+v", failure)
	}
	if result.RetryCount != 2 {
		t.Fatalf("retry count=%d, want 2", result.RetryCount)
	}
}

func TestScrapeDeterministicAcrossParallelism(t *testing.T) {
	marshal := func(parallelism int) []byte {
		cfg := testScraperConfig("jude")
		cfg.Parallelism = parallelism
		_, chapters := runScrape(t, cfg, nil)
		if len(chapters) != 1 {
			t.Fatalf("written chapters=%d, want 1", len(chapters))
		}
		data, err := json.Marshal(chapters[0])
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return data
	}

	serial := marshal(1)
	concurrent := marshal(20)
	if string(serial) != string(concurrent) {
		t.Fatalf("output depends on parallelism:\nserial:     %s\nconcurrent: %s", serial, concurrent)
	}
}

func TestResumeSkipsExistingChapters(t *testing.T) {
	table := canon.Load()
	root := t.TempDir()

	writer, err := pipeline.NewChapterFileWriter(root)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	seed := &models.Chapter{Book: "2_john", Chapter: 1, Verses: []*models.Verse{
		{Reference: "2 John 1:1", Book: "2 John", Chapter: 1, Verse: 1},
	}}
	if err := writer.Write([]*models.Chapter{seed}); err != nil {
		t.Fatalf("seed chapter: %v", err)
	}

	cfg := testScraperConfig("2_john")
	cfg.Resume = true
	cfg.OutputDir = root

	s, err := New(cfg, table)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	// No responders registered: any request would fail the run stats below.
	s.collector.WithTransport(httpmock.NewMockTransport())

	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("pipeline close: %v", err)
	}

	if result.RequestCount != 0 {
		t.Fatalf("request count=%d, want 0 with chapter already on disk", result.RequestCount)
	}
	if result.VerseCount != 0 || result.ChapterCount != 0 {
		t.Fatalf("resumed run rescraped: %+v", result)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		want       string
	}{
		{name: "context deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "net timeout", err: timeoutError{}, want: "timeout"},
		{name: "op error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: "connection"},
		{name: "forbidden", err: errors.New("status 403"), statusCode: 403, want: "forbidden"},
		{name: "not found without err", statusCode: 404, want: "not_found"},
		{name: "rate limited", err: errors.New("status 429"), statusCode: 429, want: "rate_limited"},
		{name: "unclassified", err: errors.New("boom"), statusCode: 500, want: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorTypeLabel(classifyError(tt.err, tt.statusCode))
			if got != tt.want {
				t.Fatalf("label=%q, want %q", got, tt.want)
			}
		})
	}

	if err := classifyError(nil, 0); err != nil {
		t.Fatalf("classifyError(nil, 0)=%v, want nil", err)
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "unknown"},
		{err: ErrTimeout{Err: errors.New("x")}, want: "timeout"},
		{err: ErrConnection{Err: errors.New("x")}, want: "connection"},
		{err: ErrForbidden{Err: errors.New("x")}, want: "forbidden"},
		{err: ErrNotFound{Err: errors.New("x")}, want: "not_found"},
		{err: ErrRateLimited{Err: errors.New("x")}, want: "rate_limited"},
		{err: extract.Error{Reason: "bad page"}, want: "extraction"},
		{err: canon.OutOfRangeError{Ref: canon.Ref{Book: "genesis", Chapter: 1, Verse: 99}}, want: "out_of_range"},
		{err: errors.New("anything"), want: "other"},
	}

	for _, tt := range tests {
		if got := errorTypeLabel(tt.err); got != tt.want {
			t.Fatalf("errorTypeLabel(%v)=%q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRefFromURL(t *testing.T) {
	tests := []struct {
		rawURL string
		want   canon.Ref
		ok     bool
	}{
		{rawURL: "https://biblehub.com/genesis/1-1.htm", want: canon.Ref{Book: "genesis", Chapter: 1, Verse: 1}, ok: true},
		{rawURL: "https://biblehub.com/1_peter/3-12.htm", want: canon.Ref{Book: "1_peter", Chapter: 3, Verse: 12}, ok: true},
		{rawURL: "https://biblehub.com/psalms/119-176.htm", want: canon.Ref{Book: "psalms", Chapter: 119, Verse: 176}, ok: true},
		{rawURL: "https://biblehub.com/genesis/1.htm", ok: false},
		{rawURL: "https://biblehub.com/", ok: false},
		{rawURL: "https://biblehub.com/lexicon/strongs_7225.htm", ok: false},
	}

	for _, tt := range tests {
		parsed, err := url.Parse(tt.rawURL)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.rawURL, err)
		}
		got, ok := refFromURL(parsed)
		if ok != tt.ok {
			t.Fatalf("refFromURL(%q) ok=%v, want %v", tt.rawURL, ok, tt.ok)
		}
		if ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("refFromURL(%q)=%+v, want %+v", tt.rawURL, got, tt.want)
		}
	}
}

func TestRetryBackoffDoublesAndCaps(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	rm := newRetryManager(colly.NewCollector(), cfg, nil)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 500 * time.Millisecond},
		{attempt: 10, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := rm.backoff(tt.attempt); got != tt.want {
			t.Fatalf("backoff(%d)=%v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryBudget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Hour // keep timers from firing during the test

	rm := newRetryManager(colly.NewCollector(), cfg, nil)
	defer rm.Stop()

	url := "https://biblehub.com/jude/1-1.htm"
	if !rm.Schedule(url) {
		t.Fatalf("first retry rejected")
	}
	if !rm.Schedule(url) {
		t.Fatalf("second retry rejected")
	}
	if rm.Schedule(url) {
		t.Fatalf("retry accepted past the budget")
	}
	if got := rm.TotalRetries(); got != 2 {
		t.Fatalf("total retries=%d, want 2", got)
	}
	if got := rm.Pending(); got != 1 {
		t.Fatalf("pending timers=%d, want 1 (reschedule replaces the timer)", got)
	}

	rm.Stop()
	if got := rm.Pending(); got != 0 {
		t.Fatalf("pending timers=%d after Stop, want 0", got)
	}
	rm.WaitIdle() // must not block once stopped
}

func TestRetriesDisabledByDefault(t *testing.T) {
	cfg := config.DefaultConfig()

	rm := newRetryManager(colly.NewCollector(), cfg, nil)
	if rm.Schedule("https://biblehub.com/jude/1-1.htm") {
		t.Fatalf("retry scheduled with MaxRetries=0")
	}
}

func TestRetryAfterStopRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 3

	rm := newRetryManager(colly.NewCollector(), cfg, nil)
	rm.Stop()
	if rm.Schedule("https://biblehub.com/jude/1-1.htm") {
		t.Fatalf("retry scheduled after Stop")
	}
}
