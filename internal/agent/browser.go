package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// SessionOptions configures the browser behind a Session
type SessionOptions struct {
	Headless      bool
	NavTimeout    time.Duration
	ActionTimeout time.Duration
	WindowWidth   int
	WindowHeight  int
	// NavRetry governs repeated navigation after browser errors
	NavRetry RetryConfig
}

// DefaultSessionOptions returns headless defaults
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Headless:      true,
		NavTimeout:    30 * time.Second,
		ActionTimeout: 10 * time.Second,
		WindowWidth:   1280,
		WindowHeight:  900,
		NavRetry:      DefaultRetryConfig(),
	}
}

type pendingDialog struct {
	message string
	ctx     context.Context
}

// Session owns one Chrome instance and drives whichever window is current.
// It implements Driver.
type Session struct {
	opts   SessionOptions
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	ctx      context.Context
	targetID target.ID
	tabs     map[target.ID]context.CancelFunc
	dialog   *pendingDialog
	closed   bool
}

// NewSession launches Chrome and attaches to its first tab
func NewSession(opts SessionOptions, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NavTimeout == 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	if opts.WindowWidth == 0 || opts.WindowHeight == 0 {
		opts.WindowWidth, opts.WindowHeight = 1280, 900
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// the payment flow opens its keypad in a popup
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		opts:          opts,
		logger:        logger.Named("session"),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		ctx:           browserCtx,
		tabs:          make(map[target.ID]context.CancelFunc),
	}

	// Run with no actions starts the browser and attaches the first tab.
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, NewBrowserError("failed to start browser", err)
	}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		s.targetID = c.Target.TargetID
	}
	s.listen(browserCtx)

	return s, nil
}

// Close shuts down every tab and the browser. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tabs := s.tabs
	s.tabs = nil
	s.mu.Unlock()

	for _, cancel := range tabs {
		cancel()
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.logger.Debug("browser closed")
	return nil
}

func (s *Session) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			s.mu.Lock()
			s.dialog = &pendingDialog{message: e.Message, ctx: ctx}
			s.mu.Unlock()
			s.logger.Debug("dialog opened", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		case *page.EventJavascriptDialogClosed:
			s.mu.Lock()
			if s.dialog != nil && s.dialog.ctx == ctx {
				s.dialog = nil
			}
			s.mu.Unlock()
		}
	})
}

func (s *Session) current() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) dialogPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialog != nil
}

// run executes actions on the current window bounded by the action timeout
// and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tabCtx, cancel := context.WithTimeout(s.current(), timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tabCtx, actions...)
}

// Navigate loads url and waits for the body to be ready, retrying browser
// errors per NavRetry
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.opts.NavRetry.MaxAttempts <= 1 {
		return s.navigate(ctx, url)
	}
	return Retry(ctx, s.opts.NavRetry, func() error {
		err := s.navigate(ctx, url)
		if err != nil {
			s.logger.Debug("navigation failed", zap.String("url", url), zap.Error(err))
		}
		return err
	})
}

func (s *Session) navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.opts.NavTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewBrowserError(fmt.Sprintf("timeout after %v while loading %s", s.opts.NavTimeout, url), err)
		}
		return NewBrowserError(fmt.Sprintf("failed to navigate to %s", url), err)
	}
	return nil
}

// FindAll returns every node the locator matches right now
func (s *Session) FindAll(ctx context.Context, loc Locator) ([]Control, error) {
	sel, xpath := loc.Selector()
	by := chromedp.ByQueryAll
	if xpath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, NewBrowserError(fmt.Sprintf("query %s", loc), err)
	}

	controls := make([]Control, 0, len(nodes))
	for _, n := range nodes {
		controls = append(controls, &element{session: s, node: n, loc: loc})
	}
	return controls, nil
}

// Find returns the first node the locator matches, or ErrNotFound
func (s *Session) Find(ctx context.Context, loc Locator) (Control, error) {
	controls, err := s.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(controls) == 0 {
		return nil, ErrNotFound
	}
	return controls[0], nil
}

// Screenshot captures the visible viewport of the current window
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, NewBrowserError("failed to capture screenshot", err)
	}
	return buf, nil
}

// ExecuteScript evaluates script in the current window
func (s *Session) ExecuteScript(ctx context.Context, script string, res any) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(script, res)); err != nil {
		return NewBrowserError("script evaluation failed", err)
	}
	return nil
}

// WindowHandles lists the ids of all open page targets
func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	tctx, cancel := context.WithTimeout(s.browserCtx, s.opts.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	infos, err := chromedp.Targets(tctx)
	if err != nil {
		return nil, NewBrowserError("failed to list targets", err)
	}
	handles := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			handles = append(handles, string(info.TargetID))
		}
	}
	return handles, nil
}

// SwitchWindow makes handle the window subsequent calls act on
func (s *Session) SwitchWindow(ctx context.Context, handle string) error {
	id := target.ID(handle)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return NewBrowserError("session closed", nil)
	}
	if id == s.targetID {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return NewBrowserError(fmt.Sprintf("failed to attach window %s", handle), err)
	}
	s.listen(tabCtx)

	s.mu.Lock()
	if s.tabs != nil {
		if prev, ok := s.tabs[id]; ok {
			prev()
		}
		s.tabs[id] = cancel
	}
	s.ctx = tabCtx
	s.targetID = id
	s.mu.Unlock()

	s.logger.Debug("switched window", zap.String("handle", handle))
	return ctx.Err()
}

// ReadModal returns the message of a pending JavaScript dialog
func (s *Session) ReadModal(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialog == nil {
		return "", false, ctx.Err()
	}
	return s.dialog.message, true, nil
}

// AcceptModal accepts the pending dialog on whichever window raised it
func (s *Session) AcceptModal(ctx context.Context) error {
	s.mu.Lock()
	d := s.dialog
	s.dialog = nil
	s.mu.Unlock()
	if d == nil {
		return nil
	}

	dctx, cancel := context.WithTimeout(d.ctx, s.opts.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(dctx, page.HandleJavaScriptDialog(true)); err != nil {
		return NewBrowserError("failed to accept dialog", err)
	}
	return nil
}

// CurrentURL returns the location of the current window
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Location(&u)); err != nil {
		return "", NewBrowserError("failed to read location", err)
	}
	return u, nil
}

// PageText returns the rendered text of the current document body
func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, s.opts.ActionTimeout,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		return "", NewBrowserError("failed to read page text", err)
	}
	return text, nil
}

// PointerClick performs a stepped move then press/release at (x, y)
func (s *Session) PointerClick(ctx context.Context, x, y float64) error {
	return s.run(ctx, s.opts.ActionTimeout, pointerClick(x, y))
}
