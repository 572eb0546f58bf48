package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/listkit/autoposter/internal/logger"
	"github.com/listkit/autoposter/internal/session"
)

const (
	loginPollInterval = 2 * time.Second

	// controlsJS walks the DOM and reports interactive controls and text
	// anchors. Each reported element is tagged with a data attribute so
	// follow-up actions can address it with a stable selector.
	controlsJS = `(() => {
	const out = [];
	let idx = 0;
	const interactive = 'input, textarea, select, button, [role], label, span, div';
	for (const el of document.querySelectorAll(interactive)) {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
		const tag = el.tagName.toLowerCase();
		const editable = tag === 'input' || tag === 'textarea' || tag === 'select' ||
			el.isContentEditable;
		// Text containers are only interesting as anchors: skip ones with
		// child elements so each text appears once, on its innermost node.
		if (!editable && el.children.length > 0 && !el.getAttribute('role')) continue;
		const text = (el.innerText || '').trim();
		if (!editable && !el.getAttribute('role') && text === '') continue;
		let name = el.getAttribute('aria-label') || el.getAttribute('placeholder') || '';
		if (!name && el.id) {
			const label = document.querySelector('label[for="' + el.id + '"]');
			if (label) name = (label.innerText || '').trim();
		}
		el.setAttribute('data-ap-idx', String(idx));
		out.push({
			selector: '[data-ap-idx="' + idx + '"]',
			tag: tag,
			type: el.getAttribute('type') || '',
			role: el.getAttribute('role') || (tag === 'textarea' ? 'textbox' : ''),
			name: name,
			text: text.slice(0, 200),
			value: editable ? (el.value || '') : '',
			visible: visible,
			editable: editable,
			x: rect.x,
			y: rect.y,
		});
		idx++;
	}
	return out;
})()`
)

// Driver opens Chrome browsing contexts via chromedp. It implements
// Browser and session.Authenticator.
type Driver struct {
	cfg    Config
	logger logger.Logger
}

// NewDriver creates a chromedp-backed driver.
func NewDriver(cfg Config, log logger.Logger) *Driver {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	return &Driver{cfg: cfg, logger: log}
}

func (d *Driver) allocate(ctx context.Context, headless bool) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-notifications", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		taskCancel()
		allocCancel()
	}
	return taskCtx, cancel
}

// NewPage starts a browsing context, restores the storage-state cookies
// and returns the page. The caller owns the page and must Close it.
func (d *Driver) NewPage(ctx context.Context, storageState []byte) (Page, error) {
	state, err := DecodeStorageState(storageState)
	if err != nil {
		return nil, err
	}

	taskCtx, cancel := d.allocate(ctx, d.cfg.Headless)

	// Starting the browser is the first Run call.
	if err := chromedp.Run(taskCtx, restoreCookiesAction(state)); err != nil {
		cancel()
		return nil, fmt.Errorf("start browsing context: %w", err)
	}

	return &chromePage{
		ctx:     taskCtx,
		cancel:  cancel,
		state:   state,
		timeout: d.cfg.NavigationTimeout,
		logger:  d.logger,
	}, nil
}

// Authenticate opens a headful login page and waits for the marker
// cookie that signals a completed login, polling until the wait window
// elapses. On success the captured storage state is returned.
func (d *Driver) Authenticate(ctx context.Context, loginURL string, wait time.Duration) ([]byte, error) {
	// Login is always headful: a human has to type credentials.
	taskCtx, cancel := d.allocate(ctx, false)
	defer cancel()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(loginPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-deadline.C:
			return nil, session.ErrLoginNotDetected
		case <-taskCtx.Done():
			return nil, taskCtx.Err()
		case <-poll.C:
			done, err := d.loginComplete(taskCtx)
			if err != nil {
				return nil, err
			}
			if !done {
				continue
			}
			state, err := captureStorageState(taskCtx)
			if err != nil {
				return nil, err
			}
			return state.Encode()
		}
	}
}

// loginComplete checks for the marker cookie. With no marker configured
// any cookie at all counts, which matches a plain fixed-wait flow.
func (d *Driver) loginComplete(ctx context.Context) (bool, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var cookieErr error
		cookies, cookieErr = storage.GetCookies().Do(ctx)
		return cookieErr
	}))
	if err != nil {
		return false, fmt.Errorf("read cookies: %w", err)
	}
	if d.cfg.MarkerCookie == "" {
		return len(cookies) > 0, nil
	}
	for _, c := range cookies {
		if c.Name == d.cfg.MarkerCookie {
			return true, nil
		}
	}
	return false, nil
}

func captureStorageState(ctx context.Context) (*StorageState, error) {
	var cookies []*network.Cookie
	var origin string
	var local map[string]string

	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var cookieErr error
			cookies, cookieErr = storage.GetCookies().Do(ctx)
			return cookieErr
		}),
		chromedp.Evaluate(`window.location.origin`, &origin),
		chromedp.Evaluate(`Object.fromEntries(Object.entries(window.localStorage))`, &local),
	)
	if err != nil {
		return nil, fmt.Errorf("capture storage state: %w", err)
	}

	state := &StorageState{Cookies: make([]StateCookie, 0, len(cookies))}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, StateCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	if len(local) > 0 {
		items := make([]StateItem, 0, len(local))
		for k, v := range local {
			items = append(items, StateItem{Name: k, Value: v})
		}
		state.Origins = []OriginState{{Origin: origin, LocalStorage: items}}
	}
	return state, nil
}

func restoreCookiesAction(state *StorageState) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(state.Cookies) == 0 {
			return nil
		}
		params := make([]*network.CookieParam, 0, len(state.Cookies))
		for i := range state.Cookies {
			c := &state.Cookies[i]
			param := &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			}
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param.Expires = &expires
			}
			params = append(params, param)
		}
		return storage.SetCookies(params).Do(ctx)
	})
}

// chromePage implements Page over one chromedp context.
type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	state   *StorageState
	timeout time.Duration
	logger  logger.Logger

	closeOnce sync.Once
}

func (p *chromePage) Navigate(_ context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}

	// Origin storage can only be restored once a document of that origin
	// is loaded.
	return p.restoreLocalStorage(navCtx)
}

func (p *chromePage) restoreLocalStorage(ctx context.Context) error {
	var origin string
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.location.origin`, &origin)); err != nil {
		return fmt.Errorf("read page origin: %w", err)
	}
	for _, o := range p.state.Origins {
		if o.Origin != origin {
			continue
		}
		for _, item := range o.LocalStorage {
			js := fmt.Sprintf(`window.localStorage.setItem(%q, %q)`, item.Name, item.Value)
			var ignored any
			if err := chromedp.Run(ctx, chromedp.Evaluate(js, &ignored)); err != nil {
				return fmt.Errorf("restore localStorage: %w", err)
			}
		}
	}
	return nil
}

func (p *chromePage) Controls(_ context.Context) ([]Control, error) {
	type rawControl struct {
		Selector string  `json:"selector"`
		Tag      string  `json:"tag"`
		Type     string  `json:"type"`
		Role     string  `json:"role"`
		Name     string  `json:"name"`
		Text     string  `json:"text"`
		Value    string  `json:"value"`
		Visible  bool    `json:"visible"`
		Editable bool    `json:"editable"`
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
	}

	var raw []rawControl
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(controlsJS, &raw)); err != nil {
		return nil, fmt.Errorf("snapshot controls: %w", err)
	}

	controls := make([]Control, 0, len(raw))
	for _, r := range raw {
		controls = append(controls, Control{
			Selector: r.Selector,
			Tag:      r.Tag,
			Type:     r.Type,
			Role:     r.Role,
			Name:     r.Name,
			Text:     r.Text,
			Value:    r.Value,
			Visible:  r.Visible,
			Editable: r.Editable,
			X:        r.X,
			Y:        r.Y,
		})
	}
	return controls, nil
}

func (p *chromePage) Fill(_ context.Context, selector, value string) error {
	if err := chromedp.Run(p.ctx,
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Click(_ context.Context, selector string) error {
	if err := chromedp.Run(p.ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

var keyMap = map[string]string{
	"Home":      kb.Home,
	"End":       kb.End,
	"ArrowDown": kb.ArrowDown,
	"ArrowUp":   kb.ArrowUp,
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
}

func (p *chromePage) Press(_ context.Context, keys ...string) error {
	for _, key := range keys {
		mapped, ok := keyMap[key]
		if !ok {
			return fmt.Errorf("unsupported key %q", key)
		}
		if err := chromedp.Run(p.ctx, chromedp.KeyEvent(mapped)); err != nil {
			return fmt.Errorf("press %s: %w", key, err)
		}
	}
	return nil
}

func (p *chromePage) SetFiles(_ context.Context, selector string, paths ...string) error {
	if err := chromedp.Run(p.ctx,
		chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("set files on %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Screenshot(_ context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(p.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

var _ Browser = (*Driver)(nil)
var _ session.Authenticator = (*Driver)(nil)
