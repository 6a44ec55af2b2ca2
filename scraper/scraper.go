// Package scraper drives the verse fetch loop: one HTTP request per verse,
// bounded concurrency across the whole run, extraction and assembly on each
// response, and chapter fan-in through the pipeline.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-bible/canon"
	"github.com/aluiziolira/go-scrape-bible/config"
	"github.com/aluiziolira/go-scrape-bible/extract"
	"github.com/aluiziolira/go-scrape-bible/models"
	"github.com/aluiziolira/go-scrape-bible/parser"
	"github.com/aluiziolira/go-scrape-bible/pipeline"
)

// Scraper wraps the colly collector, the extractor, and the per-chapter
// result collection for one scraping run.
type Scraper struct {
	cfg       *config.Config
	table     *canon.Table
	extractor *extract.Extractor
	collector *colly.Collector
	retry     *retryManager
	Metrics   *Metrics

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	chapters     map[string]*chapterState
	failures     []models.VerseFailure
	errorsByType map[string]int
	verseCount   int
	chapterCount int

	handlersOnce sync.Once
}

// chapterState accumulates one chapter's verses as concurrent fetches
// resolve. Slots are indexed by verse number so final order never depends
// on completion order; each slot resolves exactly once.
type chapterState struct {
	book     string
	chapter  int
	slots    []*models.Verse
	resolved []bool
	pending  int
	failures []models.VerseFailure
}

// New builds a scraper instance configured from cfg, using table for
// iteration bounds and language selection.
func New(cfg *config.Config, table *canon.Table) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	// Every verse URL is visited exactly once by the run loop; revisit
	// checks would only block retries.
	collector.AllowURLRevisit = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		table:        table,
		extractor:    extract.New(extract.Selectors{}, cfg.TargetVersions),
		collector:    collector,
		chapters:     make(map[string]*chapterState),
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(collector, cfg, s.Metrics)
	return s, nil
}

// Run scrapes the configured selection (one book or the whole canon) and
// streams completed chapters through the pipeline. Per-verse failures are
// recorded in the result, never aborting the run.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.retry.SetContext(ctx)
	s.configureHandlers(ctx, p)

	books := s.table.Books()
	if s.cfg.Book != "" {
		slug, err := s.table.Resolve(s.cfg.Book)
		if err != nil {
			return nil, err
		}
		books = []string{slug}
	}

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.collector.Wait()
			s.retry.Stop()
		case <-done:
		}
	}()

	skipped := 0
submit:
	for _, book := range books {
		chapterTotal, err := s.table.ChapterCount(book)
		if err != nil {
			return nil, err
		}
		for chapter := 1; chapter <= chapterTotal; chapter++ {
			if ctx.Err() != nil {
				break submit
			}
			if s.cfg.Resume && p.HasChapter(book, chapter) {
				skipped++
				continue
			}
			verseTotal, err := s.table.VerseCount(book, chapter)
			if err != nil {
				return nil, err
			}
			s.registerChapter(book, chapter, verseTotal)
			for verse := 1; verse <= verseTotal; verse++ {
				ref := canon.Ref{Book: book, Chapter: chapter, Verse: verse}
				if err := s.collector.Visit(ref.URL(s.cfg.BaseURL)); err != nil {
					s.noteError(err)
					slog.Error("submit request",
						slog.String("ref", ref.String()),
						slog.Any("error", err),
					)
					s.resolveVerse(p, ref, nil, err)
				}
			}
		}
	}
	if skipped > 0 {
		slog.Info("resume: skipped existing chapters", slog.Int("chapters", skipped))
	}

	// A drained request queue can still leave retry timers pending; each
	// fired retry may queue more work, so alternate until both are idle.
	s.collector.Wait()
	for s.retry.Pending() > 0 {
		s.retry.WaitIdle()
		s.collector.Wait()
	}
	s.retry.Stop()

	s.mu.Lock()
	result := &models.ScrapeResult{
		StartTime:    start,
		EndTime:      time.Now(),
		VerseCount:   s.verseCount,
		ChapterCount: s.chapterCount,
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		Failures:     append([]models.VerseFailure(nil), s.failures...),
		ErrorsByType: snapshotMap(s.errorsByType),
		RetryCount:   s.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
	}
	s.mu.Unlock()

	return result, nil
}

func (s *Scraper) configureHandlers(ctx context.Context, p *pipeline.Pipeline) {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&s.requestCount, 1)
			s.Metrics.IncRequest("started")
			if current%250 == 0 {
				slog.Debug("scraper request progress",
					slog.Int64("requests", current),
					slog.String("url", r.URL.String()),
				)
			}
		})

		s.collector.OnResponse(func(r *colly.Response) {
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}

			ref, ok := refFromURL(r.Request.URL)
			if !ok {
				slog.Warn("response for unrecognized url", slog.String("url", r.Request.URL.String()))
				return
			}

			res, err := s.extractor.Extract(r.Body, s.table.Language(ref.Book))
			if err != nil {
				s.noteError(err)
				slog.Error("extraction failed",
					slog.String("ref", ref.String()),
					slog.Any("error", err),
				)
				s.resolveVerse(p, ref, nil, err)
				return
			}

			verse, err := parser.Assemble(s.table, ref, res.Translations, res.OriginalWords, res.CrossReferences)
			if err != nil {
				s.noteError(err)
				// An out-of-range reference here means the reference table
				// and the run loop disagree.
				slog.Error("verse assembly failed",
					slog.String("ref", ref.String()),
					slog.Any("error", err),
				)
				s.resolveVerse(p, ref, nil, err)
				return
			}

			s.Metrics.IncVerses()
			s.resolveVerse(p, ref, verse, nil)
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			requestURL := ""
			if r != nil {
				statusCode = r.StatusCode
				if r.Request != nil && r.Request.URL != nil {
					requestURL = r.Request.URL.String()
				}
			}
			classified := classifyError(err, statusCode)
			category := s.noteError(classified)

			slog.Error("request error",
				slog.String("url", requestURL),
				slog.String("category", category),
				slog.Any("error", err),
			)

			if s.retry.Schedule(requestURL) {
				return
			}
			if parsed, parseErr := url.Parse(requestURL); parseErr == nil {
				if ref, ok := refFromURL(parsed); ok {
					s.resolveVerse(p, ref, nil, classified)
				}
			}
		})
	})
}

func (s *Scraper) registerChapter(book string, chapter, verseTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[chapterKey(book, chapter)] = &chapterState{
		book:     book,
		chapter:  chapter,
		slots:    make([]*models.Verse, verseTotal),
		resolved: make([]bool, verseTotal),
		pending:  verseTotal,
	}
}

// resolveVerse records the outcome for one verse and, when it is the last
// outstanding verse of its chapter, emits the completed chapter.
func (s *Scraper) resolveVerse(p *pipeline.Pipeline, ref canon.Ref, verse *models.Verse, cause error) {
	s.mu.Lock()
	state := s.chapters[chapterKey(ref.Book, ref.Chapter)]
	if state == nil || ref.Verse < 1 || ref.Verse > len(state.slots) || state.resolved[ref.Verse-1] {
		s.mu.Unlock()
		return
	}
	state.resolved[ref.Verse-1] = true
	if verse != nil {
		state.slots[ref.Verse-1] = verse
		s.verseCount++
	} else {
		failure := models.VerseFailure{
			Book:     ref.Book,
			Chapter:  ref.Chapter,
			Verse:    ref.Verse,
			Category: errorTypeLabel(cause),
			Err:      cause,
		}
		state.failures = append(state.failures, failure)
		s.failures = append(s.failures, failure)
	}
	state.pending--

	var completed *models.Chapter
	var failedVerses int
	if state.pending == 0 {
		verses := make([]*models.Verse, 0, len(state.slots))
		for _, v := range state.slots {
			if v != nil {
				verses = append(verses, v)
			}
		}
		completed = &models.Chapter{Book: state.book, Chapter: state.chapter, Verses: verses}
		failedVerses = len(state.failures)
		delete(s.chapters, chapterKey(ref.Book, ref.Chapter))
		s.chapterCount++
	}
	s.mu.Unlock()

	if completed == nil {
		return
	}
	s.Metrics.IncChapters()
	if failedVerses > 0 {
		slog.Warn("chapter completed with failures",
			slog.String("book", completed.Book),
			slog.Int("chapter", completed.Chapter),
			slog.Int("failed_verses", failedVerses),
		)
	}
	if err := p.Process(completed); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
		slog.Error("pipeline process error", slog.Any("error", err))
	}
}

func (s *Scraper) noteError(err error) string {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)
	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()
	s.Metrics.IncError(category)
	return category
}

func chapterKey(book string, chapter int) string {
	return book + "/" + strconv.Itoa(chapter)
}

func snapshotMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var verseURLRe = regexp.MustCompile(`/([a-z0-9_]+)/(\d+)-(\d+)\.htm$`)

// refFromURL recovers the verse reference from a page URL, e.g.
// /1_peter/1-2.htm -> {1_peter 1 2}.
func refFromURL(u *url.URL) (canon.Ref, bool) {
	m := verseURLRe.FindStringSubmatch(strings.ToLower(u.Path))
	if m == nil {
		return canon.Ref{}, false
	}
	chapter, err := strconv.Atoi(m[2])
	if err != nil {
		return canon.Ref{}, false
	}
	verse, err := strconv.Atoi(m[3])
	if err != nil {
		return canon.Ref{}, false
	}
	return canon.Ref{Book: m[1], Chapter: chapter, Verse: verse}, true
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}

type retryManager struct {
	collector *colly.Collector
	cfg       *config.Config
	metrics   *Metrics
	ctx       context.Context

	mu           sync.Mutex
	cond         *sync.Cond
	attempts     map[string]int
	timers       map[string]*time.Timer
	totalRetries int
	stopped      bool
}

func newRetryManager(collector *colly.Collector, cfg *config.Config, metrics *Metrics) *retryManager {
	rm := &retryManager{
		collector: collector,
		cfg:       cfg,
		attempts:  make(map[string]int),
		timers:    make(map[string]*time.Timer),
		metrics:   metrics,
		ctx:       context.Background(),
	}
	rm.cond = sync.NewCond(&rm.mu)
	return rm
}

// Schedule queues a delayed re-visit of url, reporting false once the
// attempt budget is spent (or retries are disabled).
func (rm *retryManager) Schedule(url string) bool {
	if rm.cfg.MaxRetries == 0 || url == "" {
		return false
	}

	rm.mu.Lock()

	if rm.stopped {
		rm.mu.Unlock()
		return false
	}
	if rm.ctx != nil && rm.ctx.Err() != nil {
		rm.mu.Unlock()
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		rm.mu.Unlock()
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	delay := rm.backoff(attempt)
	rm.resetTimerLocked(url)
	rm.timers[url] = time.AfterFunc(delay, func() {
		rm.fireRetry(url)
	})
	rm.mu.Unlock()
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) resetTimerLocked(url string) {
	if timer, ok := rm.timers[url]; ok {
		timer.Stop()
		delete(rm.timers, url)
	}
}

func (rm *retryManager) fireRetry(url string) {
	defer func() {
		rm.mu.Lock()
		delete(rm.timers, url)
		rm.cond.Broadcast()
		rm.mu.Unlock()
	}()

	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	ctx := rm.ctx
	rm.mu.Unlock()

	if ctx != nil && ctx.Err() != nil {
		return
	}
	if err := rm.collector.Visit(url); err != nil {
		slog.Debug("retry visit failed", slog.String("url", url), slog.Any("error", err))
	}
}

// Pending reports the number of retry timers that have not fired yet.
func (rm *retryManager) Pending() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.timers)
}

// WaitIdle blocks until every scheduled retry timer has fired (and its
// re-visit has been queued) or the manager is stopped.
func (rm *retryManager) WaitIdle() {
	rm.mu.Lock()
	for !rm.stopped && len(rm.timers) > 0 {
		rm.cond.Wait()
	}
	rm.mu.Unlock()
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for url, timer := range rm.timers {
		timer.Stop()
		delete(rm.timers, url)
	}
	rm.cond.Broadcast()
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
