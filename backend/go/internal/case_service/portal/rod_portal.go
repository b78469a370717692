package portal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"RoboSupport/backend/go/internal/config"
	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	statusPath   = "/status"
	reminderPath = "/reminder"

	// Any of these appear once a status search has rendered a result.
	statusSettledRegex   = `/resolved|open|pending|not found|no results/i`
	reminderSettledRegex = `/sent|success|reminder submitted/i`
)

// RodPortal drives the portal with a headless Chromium. Each call runs in
// its own incognito context so concurrent monitors never share page state.
type RodPortal struct {
	cfg config.PortalConfig
	log *logger.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewRodPortal creates an adapter. The browser is started lazily on first use.
func NewRodPortal(cfg config.PortalConfig, log *logger.Logger) *RodPortal {
	return &RodPortal{cfg: cfg, log: log}
}

func (p *RodPortal) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}

	controlURL := p.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(p.cfg.Headless)
		if p.cfg.BrowserBin != "" {
			l = l.Bin(p.cfg.BrowserBin)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chromium: %w", err)
		}
		controlURL = url
		p.launcher = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if p.launcher != nil {
			p.launcher.Kill()
			p.launcher = nil
		}
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}
	p.browser = browser
	p.log.WithPayload(map[string]interface{}{"control_url": controlURL}).Info("portal browser connected")
	return browser, nil
}

// Close shuts the browser down. The adapter reconnects on next use.
func (p *RodPortal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.browser != nil {
		err = p.browser.Close()
		p.browser = nil
	}
	if p.launcher != nil {
		p.launcher.Kill()
		p.launcher = nil
	}
	return err
}

// withPage opens url in a fresh incognito page bound to ctx and runs fn.
func (p *RodPortal) withPage(ctx context.Context, url string, fn func(*rod.Page) error) error {
	browser, err := p.ensureBrowser()
	if err != nil {
		return err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		p.resetIfDisconnected(err)
		return fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		p.resetIfDisconnected(err)
		return fmt.Errorf("open %s: %w", url, err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return fn(page)
}

// resetIfDisconnected drops a dead browser so the next call relaunches it.
func (p *RodPortal) resetIfDisconnected(err error) {
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "closed") {
		return
	}
	p.mu.Lock()
	p.browser = nil
	p.mu.Unlock()
}

// Submit files a new case and returns the tracking number shown on the
// confirmation page.
func (p *RodPortal) Submit(ctx context.Context, userID, issueText string) (string, error) {
	sel := p.cfg.Selectors
	budget := p.cfg.Timeout() + p.typingBudget(userID+issueText)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var taskNumber string
	err := p.withPage(ctx, p.cfg.BaseURL, func(page *rod.Page) error {
		if err := p.typeInto(ctx, page, sel.UserInput, userID); err != nil {
			return err
		}
		if err := p.typeInto(ctx, page, sel.IssueInput, issueText); err != nil {
			return err
		}
		if err := p.click(page, sel.SubmitButton); err != nil {
			return err
		}

		confirmation, err := page.ElementR("body", sel.SuccessText)
		if err != nil {
			return fmt.Errorf("waiting for confirmation: %w", err)
		}
		text, err := confirmation.Text()
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		taskNumber = ExtractTaskNumber(text)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if taskNumber == "" {
		return "", fmt.Errorf("%w: no tracking number on confirmation page", ErrSubmissionFailed)
	}

	p.log.WithPayload(map[string]interface{}{"task_number": taskNumber}).Info("case submitted to portal")
	return taskNumber, nil
}

// CheckStatus searches the status page for taskNumber.
func (p *RodPortal) CheckStatus(ctx context.Context, taskNumber string) (models.CaseStatus, string, error) {
	sel := p.cfg.Selectors
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout()+p.typingBudget(taskNumber))
	defer cancel()

	var pageHTML string
	err := p.withPage(ctx, p.url(statusPath), func(page *rod.Page) error {
		if err := p.typeInto(ctx, page, sel.TaskInput, taskNumber); err != nil {
			return err
		}
		if err := p.click(page, sel.SearchButton); err != nil {
			return err
		}

		// A search that never settles still yields a page worth parsing.
		if _, err := page.ElementR("body", statusSettledRegex); err != nil && ctx.Err() != nil {
			return err
		}
		html, err := page.HTML()
		if err != nil {
			return fmt.Errorf("read status page: %w", err)
		}
		pageHTML = html
		return nil
	})
	if err != nil {
		return models.CaseUnknown, "", fmt.Errorf("check status of %s: %w", taskNumber, err)
	}

	status, response := ParseStatusPage(pageHTML)
	return status, response, nil
}

// SendReminder asks the portal to nudge the support team about taskNumber.
func (p *RodPortal) SendReminder(ctx context.Context, taskNumber string) error {
	sel := p.cfg.Selectors
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout()+p.typingBudget(taskNumber))
	defer cancel()

	err := p.withPage(ctx, p.url(reminderPath), func(page *rod.Page) error {
		if err := p.typeInto(ctx, page, sel.TaskInput, taskNumber); err != nil {
			return err
		}
		if err := p.click(page, sel.ReminderButton); err != nil {
			return err
		}
		if _, err := page.ElementR("body", reminderSettledRegex); err != nil {
			return fmt.Errorf("waiting for reminder confirmation: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReminderFailed, err)
	}
	return nil
}

func (p *RodPortal) url(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *RodPortal) click(page *rod.Page, selector string) error {
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// typeInto focuses the element and enters text one rune at a time with a
// jittered delay, the way a person would type it.
func (p *RodPortal) typeInto(ctx context.Context, page *rod.Page, selector, text string) error {
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus %q: %w", selector, err)
	}

	base := p.cfg.KeyDelay()
	for _, r := range text {
		if err := page.InsertText(string(r)); err != nil {
			return fmt.Errorf("type into %q: %w", selector, err)
		}
		if err := sleep(ctx, jitter(base)); err != nil {
			return err
		}
	}
	return nil
}

func (p *RodPortal) typingBudget(text string) time.Duration {
	return time.Duration(utf8.RuneCountInString(text)) * p.cfg.KeyDelay() * 3 / 2
}

// jitter returns a delay uniformly spread over [d/2, 3d/2).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Adapter = (*RodPortal)(nil)
