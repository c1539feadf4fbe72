package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/feichai0017/review-automation/pkg/logger"
)

const defaultPageLoadTimeout = 120 * time.Second

// Launcher opens chromedp-backed sessions. Each Open starts its own browser
// process; sessions never share state.
type Launcher struct {
	Headless        bool
	ExecPath        string
	PageLoadTimeout time.Duration

	logger logger.Logger
}

func NewLauncher(headless bool, execPath string, log logger.Logger) *Launcher {
	return &Launcher{
		Headless:        headless,
		ExecPath:        execPath,
		PageLoadTimeout: defaultPageLoadTimeout,
		logger:          log,
	}
}

// Open starts a browser whose lifetime is bound to ctx: when ctx ends the
// browser is torn down and every pending call fails with ErrSessionClosed.
func (l *Launcher) Open(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("headless", l.Headless),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// An empty Run launches the browser and the first tab.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	pageLoad := l.PageLoadTimeout
	if pageLoad <= 0 {
		pageLoad = defaultPageLoadTimeout
	}
	l.logger.Debug("Browser session opened", logger.Bool("headless", l.Headless))

	return &chromeSession{
		ctx:         tabCtx,
		pageLoad:    pageLoad,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

type chromeSession struct {
	ctx      context.Context
	pageLoad time.Duration

	quitOnce    sync.Once
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// run executes actions against the tab, bounded by both the session and the
// caller's context.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case s.ctx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	case ctx.Err() != nil:
		return context.Cause(ctx)
	case errors.Is(err, chromedp.ErrInvalidContext):
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	loadCtx, cancel := context.WithTimeout(ctx, s.pageLoad)
	defer cancel()
	if err := s.run(loadCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Reload(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, s.pageLoad)
	defer cancel()
	if err := s.run(loadCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (s *chromeSession) Count(ctx context.Context, sel Selector) (int, error) {
	var n int
	if err := s.run(ctx, chromedp.Evaluate(script(sel, "return els.length;"), &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *chromeSession) Texts(ctx context.Context, sel Selector) ([]string, error) {
	var texts []string
	js := script(sel, "return els.map(e => (e.innerText || e.textContent || ''));")
	if err := s.run(ctx, chromedp.Evaluate(js, &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

func (s *chromeSession) Clickable(ctx context.Context, sel Selector) (bool, error) {
	var ok bool
	js := script(sel, `
if (els.length === 0) return false;
const e = els[0];
const st = window.getComputedStyle(e);
if (st.visibility === 'hidden' || st.display === 'none') return false;
if (e.getClientRects().length === 0) return false;
return !e.disabled;`)
	if err := s.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *chromeSession) Click(ctx context.Context, sel Selector, index int) error {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.Expr, &nodes, queryOpt(sel), chromedp.AtLeast(0))); err != nil {
		return err
	}
	if index < 0 || index >= len(nodes) {
		return noSuchElement(sel, index)
	}
	return s.run(ctx, chromedp.MouseClickNode(nodes[index]))
}

func (s *chromeSession) ScriptClick(ctx context.Context, sel Selector, index int) error {
	return s.onIndex(ctx, sel, index, "e.click();")
}

func (s *chromeSession) ScrollIntoView(ctx context.Context, sel Selector, index int) error {
	return s.onIndex(ctx, sel, index, "e.scrollIntoView({block: 'center'});")
}

func (s *chromeSession) SendKeys(ctx context.Context, sel Selector, text string) error {
	return s.run(ctx, chromedp.SendKeys(sel.Expr, text, queryOpt(sel)))
}

func (s *chromeSession) SetFile(ctx context.Context, sel Selector, path string) error {
	return s.run(ctx, chromedp.SetUploadFiles(sel.Expr, []string{path}, queryOpt(sel)))
}

func (s *chromeSession) Quit() error {
	s.quitOnce.Do(func() {
		s.cancelTab()
		s.cancelAlloc()
	})
	return nil
}

func (s *chromeSession) onIndex(ctx context.Context, sel Selector, index int, body string) error {
	var found bool
	js := script(sel, fmt.Sprintf("const e = els[%d]; if (!e) return false; %s return true;", index, body))
	if err := s.run(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return err
	}
	if !found {
		return noSuchElement(sel, index)
	}
	return nil
}

func queryOpt(sel Selector) chromedp.QueryOption {
	if sel.By == ByCSS {
		return chromedp.ByQueryAll
	}
	return chromedp.BySearch
}

// script wraps body in a function that has the matches of sel bound to els.
func script(sel Selector, body string) string {
	expr, _ := json.Marshal(sel.Expr)
	find := "Array.from(document.querySelectorAll(%s))"
	if sel.By == ByXPath {
		find = `(function(x) {
  const r = document.evaluate(x, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  const out = [];
  for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
  return out;
})(%s)`
	}
	return fmt.Sprintf("(function() {\nconst els = %s;\n%s\n})()", fmt.Sprintf(find, expr), body)
}
