package meeting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/yok-tottii/meetscribe/internal/logger"
)

// ErrChromeNotFound is returned by FindChrome when no Chrome or Chromium is installed
var ErrChromeNotFound = errors.New("chrome not found")

const (
	defaultSettle      = 8 * time.Second
	defaultStepTimeout = 2 * time.Second
	joinTimeout        = 90 * time.Second
	leaveTimeout       = 15 * time.Second
)

// Selectors are tried in order and the first visible match is clicked.
// Entries starting with "/" are XPath. Meeting UIs change often, so none of
// these is guaranteed to match.
var (
	micSelectors = []string{
		`[aria-label*="microphone"]`,
		`[aria-label*="Turn off microphone"]`,
		`[data-testid*="mic"]`,
		`div[aria-label*="Mute"]`,
	}
	cameraSelectors = []string{
		`[aria-label*="camera"]`,
		`[aria-label*="Turn off camera"]`,
		`[data-testid*="camera"]`,
		`div[aria-label*="camera off"]`,
	}
	joinSelectors = []string{
		`//span[contains(text(), 'Join now')]`,
		`//span[contains(text(), 'Ask to join')]`,
		`//div[contains(text(), 'Join now')]`,
		`[data-testid='join-button']`,
		`button[jsname='Qx7uuf']`,
	}
	leaveSelectors = []string{
		`[aria-label*="Leave call"]`,
		`[data-testid*="leave"]`,
		`button[aria-label*="Leave call"]`,
	}
)

// FindChrome returns the path of an installed Chrome or Chromium
func FindChrome() (string, error) {
	for _, name := range chromeCandidates(runtime.GOOS) {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrChromeNotFound
}

func chromeCandidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"google-chrome",
			"chromium",
		}
	case "windows":
		return []string{
			"chrome.exe",
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
			"chrome",
		}
	}
}

// Chrome joins meetings in a dedicated Chrome profile driven over the
// DevTools protocol. It mutes the local microphone and camera, presses the
// join button, and on Leave hangs up and quits the browser.
//
// The browser belongs to the Chrome value, not to the context passed to
// Join, so it stays open after the call that started it returns.
type Chrome struct {
	execPath string
	headless bool
	settle   time.Duration
	step     time.Duration
	log      logger.Interface

	mu          sync.Mutex
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	profileDir  string
}

// ChromeOption configures a Chrome joiner
type ChromeOption func(*Chrome)

// WithHeadless runs Chrome without a window
func WithHeadless(headless bool) ChromeOption {
	return func(c *Chrome) { c.headless = headless }
}

// WithSettle sets how long to wait after the meeting page loads
// before looking for controls.
func WithSettle(d time.Duration) ChromeOption {
	return func(c *Chrome) { c.settle = d }
}

// WithStepTimeout bounds the wait for each selector
func WithStepTimeout(d time.Duration) ChromeOption {
	return func(c *Chrome) { c.step = d }
}

// WithChromeLogger sets the logger
func WithChromeLogger(log logger.Interface) ChromeOption {
	return func(c *Chrome) { c.log = log }
}

// NewChrome creates a joiner that launches the browser at execPath
func NewChrome(execPath string, opts ...ChromeOption) *Chrome {
	c := &Chrome{
		execPath: execPath,
		settle:   defaultSettle,
		step:     defaultStepTimeout,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chrome) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(c.execPath),
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", c.headless),
		// the recorder captures what Chrome plays
		chromedp.Flag("mute-audio", false),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
	)
}

// Join launches Chrome, opens meetingURL and tries to get into the call.
// Missing controls are logged and skipped; when no join button matches,
// Enter is pressed instead. Only a failure to launch or load the page is
// returned as an error.
func (c *Chrome) Join(ctx context.Context, meetingURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tab != nil {
		return errors.New("chrome is already in a meeting")
	}

	profileDir, err := os.MkdirTemp("", "meetscribe-chrome-")
	if err != nil {
		return fmt.Errorf("failed to create chrome profile: %w", err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions(profileDir)...)
	tab, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(c.log.Debug),
		chromedp.WithErrorf(c.log.Debug),
	)
	c.tab, c.cancelTab, c.cancelAlloc, c.profileDir = tab, cancelTab, cancelAlloc, profileDir

	// The first Run starts the browser and must use the tab context itself:
	// cancelling a derived context there would close it again.
	if err := chromedp.Run(tab); err != nil {
		c.shutdown()
		return fmt.Errorf("failed to launch chrome: %w", err)
	}
	c.log.Info("Chrome started: %s", c.execPath)

	steps, cancel := context.WithTimeout(tab, joinTimeout)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	if err := chromedp.Run(steps,
		chromedp.Navigate(meetingURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		c.shutdown()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to open meeting page: %w", err)
	}

	var hidden bool
	if err := chromedp.Run(steps, chromedp.Evaluate(
		`Object.defineProperty(navigator, 'webdriver', {get: () => undefined}); true`, &hidden)); err != nil {
		c.log.Debug("Could not mask webdriver flag: %v", err)
	}

	sleepCtx(steps, c.settle)

	c.clickFirst(steps, "microphone", micSelectors)
	c.clickFirst(steps, "camera", cameraSelectors)

	if !c.clickFirst(steps, "join", joinSelectors, chromedp.NodeEnabled) && steps.Err() == nil {
		c.log.Info("Join button not found, pressing Enter")
		if err := chromedp.Run(steps, chromedp.SendKeys("body", kb.Enter, chromedp.ByQuery)); err != nil {
			c.log.Warn("Failed to press Enter: %v", err)
		}
	}

	if err := ctx.Err(); err != nil {
		c.shutdown()
		return err
	}

	c.log.Info("Meeting opened in Chrome: %s", meetingURL)
	return nil
}

// Leave hangs up if a leave button is found, then quits Chrome.
// It is a no-op when Chrome is not running.
func (c *Chrome) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tab == nil {
		return nil
	}

	steps, cancel := context.WithTimeout(c.tab, leaveTimeout)
	stop := context.AfterFunc(ctx, cancel)
	left := c.clickFirst(steps, "leave", leaveSelectors)
	stop()
	cancel()

	if !left {
		c.log.Warn("Leave button not found; closing the browser")
	}
	return c.shutdown()
}

// Close quits Chrome if it is still running
func (c *Chrome) Close() error {
	return c.Leave(context.Background())
}

// Running reports whether a browser launched by Join is open
func (c *Chrome) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab != nil
}

func (c *Chrome) shutdown() error {
	err := chromedp.Cancel(c.tab)
	c.cancelTab()
	c.cancelAlloc()
	if rmErr := os.RemoveAll(c.profileDir); rmErr != nil {
		c.log.Debug("Failed to remove chrome profile %s: %v", c.profileDir, rmErr)
	}
	c.tab, c.cancelTab, c.cancelAlloc, c.profileDir = nil, nil, nil, ""

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	c.log.Info("Chrome closed")
	return nil
}

// clickFirst clicks the first selector that matches a visible node
func (c *Chrome) clickFirst(ctx context.Context, control string, selectors []string, opts ...chromedp.QueryOption) bool {
	for _, sel := range selectors {
		if ctx.Err() != nil {
			return false
		}

		query := append([]chromedp.QueryOption{queryBy(sel), chromedp.NodeVisible}, opts...)
		stepCtx, cancel := context.WithTimeout(ctx, c.step)
		err := chromedp.Run(stepCtx, chromedp.Click(sel, query...))
		cancel()

		if err == nil {
			c.log.Info("Clicked %s control: %s", control, sel)
			return true
		}
	}

	c.log.Debug("No %s control matched", control)
	return false
}

func queryBy(sel string) chromedp.QueryOption {
	if strings.HasPrefix(sel, "/") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
