package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/sync/errgroup"

	"polistep/internal/config"
	"polistep/internal/llm"
	"polistep/internal/logging"
	"polistep/internal/parse"
	"polistep/internal/progress"
	"polistep/internal/types"
)

// RunTask is one supervised agent run.
type RunTask struct {
	Prompt       string
	EntryURL     string
	DownloadsDir string
}

// Supervisor owns the lifecycle of one browser session per run: launch,
// background producers, the agent loop, and unconditional release.
type Supervisor struct {
	cfg config.Config
	llm llm.Client

	// observe is swapped in tests to drive the loop without a browser.
	observe func(page *rod.Page) (*observation, error)
}

// NewSupervisor wires a supervisor to its LLM client.
func NewSupervisor(cfg config.Config, client llm.Client) *Supervisor {
	return &Supervisor{cfg: cfg, llm: client, observe: observe}
}

// Run executes one agent run end to end. It always returns a result:
// launch failures, timeouts, panics, and breaker trips all degrade to a
// result with Error set and NeedsReview true. The session is released
// before Run returns, on every path.
func (s *Supervisor) Run(ctx context.Context, task RunTask, sink progress.Sink) (result *types.AgentRunResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.BrowserError("agent run panicked: %v", r)
			result = failedResult(fmt.Sprintf("agent run panicked: %v", r), nil)
		}
	}()

	entryURL, err := NormalizeEntryURL(task.EntryURL)
	if err != nil {
		return failedResult(err.Error(), nil)
	}

	if task.DownloadsDir != "" {
		if err := os.MkdirAll(task.DownloadsDir, 0755); err != nil {
			return failedResult(fmt.Sprintf("downloads dir: %v", err), nil)
		}
	}

	browser, err := launchBrowser(s.cfg.Browser)
	if err != nil {
		return failedResult(err.Error(), nil)
	}
	// keep_session_open leaves the browser alive for inspection after the
	// run; only honored in headed mode, a headless server gains nothing.
	keepOpen := s.cfg.Browser.KeepSessionOpen && !s.cfg.Browser.Headless
	defer func() {
		if keepOpen {
			logging.Browser("keep_session_open set, leaving browser running")
			return
		}
		if err := browser.Close(); err != nil {
			logging.BrowserWarn("browser close: %v", err)
		}
	}()

	page, err := openPage(browser, s.cfg.Browser, entryURL, task.DownloadsDir)
	if err != nil {
		return failedResult(err.Error(), nil)
	}
	defer func() {
		if !keepOpen {
			_ = page.Close()
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Run.MaxWallClock())
	defer cancel()

	// Background producers live exactly as long as the run and are
	// awaited before the page and browser close, on every exit path.
	watcher := newDownloadsWatcher()
	capturer := progress.NewFrameCapturer(
		screenshotter{page: page}, sink,
		s.cfg.Progress.FrameInterval(), s.cfg.Progress.FrameSizeLimit,
	)
	fns := []func(ctx context.Context) error{
		func(ctx context.Context) error { capturer.Run(ctx); return nil },
	}
	if task.DownloadsDir != "" {
		fns = append(fns, func(ctx context.Context) error {
			return watcher.Watch(ctx, task.DownloadsDir)
		})
	}
	prod := startProducers(runCtx, fns...)
	defer prod.Stop()

	steps := []types.NavigationStep{{
		Action:       "open",
		TargetURL:    entryURL,
		AutoInjected: true,
	}}

	sink.Log(fmt.Sprintf("검증 시작: %s", entryURL))
	raw, runErr := s.runAgent(runCtx, page, task.Prompt, sink, &steps)

	prod.Stop()

	if runErr != nil {
		msg := runErr.Error()
		if runCtx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("exceeded timeout after %s", s.cfg.Run.MaxWallClock())
		}
		logging.BrowserError("agent run failed after %s: %s", time.Since(started).Round(time.Second), msg)
		r := failedResult(msg, steps)
		r.DownloadedFiles = watcher.Files()
		return r
	}

	result = parse.Parse(raw)
	if len(result.NavigationPath) == 0 {
		result.NavigationPath = steps
	}
	result.DownloadedFiles = watcher.Files()
	s.fillPageFacts(page, result)

	logging.Browser("agent run finished in %s: matched=%s parse_failed=%v downloads=%d",
		time.Since(started).Round(time.Second), result.Matched, result.ParseFailed, len(result.DownloadedFiles))
	return result
}

// fillPageFacts completes the result from the live page: final URL and
// the page's image URLs. Best effort; the page may already be gone.
func (s *Supervisor) fillPageFacts(page *rod.Page, result *types.AgentRunResult) {
	info, err := page.Info()
	if err != nil {
		logging.BrowserWarn("final page info: %v", err)
		return
	}
	if result.FinalURL == "" {
		result.FinalURL = info.URL
	}

	pageHTML, err := page.HTML()
	if err != nil {
		logging.BrowserWarn("final page html: %v", err)
		return
	}
	result.ImageURLs = harvestImageURLs(pageHTML, info.URL)
}

// producers owns the run-scoped background goroutines. A failing
// producer is logged and never disturbs the others; the frame stream in
// particular must survive a watcher error.
type producers struct {
	cancel context.CancelFunc
	g      *errgroup.Group
	once   sync.Once
}

// startProducers launches each fn in its own goroutine under a context
// derived from ctx.
func startProducers(ctx context.Context, fns ...func(ctx context.Context) error) *producers {
	pctx, cancel := context.WithCancel(ctx)
	p := &producers{cancel: cancel, g: &errgroup.Group{}}
	for _, fn := range fns {
		p.g.Go(func() error {
			if err := fn(pctx); err != nil {
				logging.BrowserWarn("background producer: %v", err)
			}
			return nil
		})
	}
	return p
}

// Stop cancels the producers and waits for all of them to return. Safe
// to call more than once.
func (p *producers) Stop() {
	p.once.Do(func() {
		p.cancel()
		_ = p.g.Wait()
	})
}

func failedResult(msg string, steps []types.NavigationStep) *types.AgentRunResult {
	return &types.AgentRunResult{
		Matched:        types.MatchedUnknown,
		NeedsReview:    true,
		Error:          msg,
		NavigationPath: steps,
	}
}
