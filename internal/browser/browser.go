// Package browser abstracts the automated browsing context used for
// posting. The concrete driver speaks the Chrome DevTools protocol via
// chromedp; the interfaces stay small enough to fake in tests.
package browser

import (
	"context"
	"time"
)

// Control describes one candidate element on the page: an interactive
// form control or a visible text node usable as an anchor.
type Control struct {
	// Selector uniquely addresses the element for follow-up actions.
	Selector string
	Tag      string
	Type     string
	Role     string
	// Name is the accessible name (aria-label, associated label, placeholder).
	Name string
	// Text is the element's own visible text, for anchor matching.
	Text     string
	Value    string
	Visible  bool
	Editable bool
	X        float64
	Y        float64
}

// Page is one open tab inside an authenticated browsing context.
// Implementations must make Close idempotent; the orchestrator closes
// pages with defer on every exit path.
type Page interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Controls returns a snapshot of candidate controls and text anchors
	// currently on the page, in document order.
	Controls(ctx context.Context) ([]Control, error)

	// Fill clears the control addressed by selector and types the value.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the element addressed by selector.
	Click(ctx context.Context, selector string) error

	// Press sends keyboard keys to the focused element.
	Press(ctx context.Context, keys ...string) error

	// SetFiles attaches local files to a file input.
	SetFiles(ctx context.Context, selector string, paths ...string) error

	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close tears down the page and its browsing context.
	Close() error
}

// Browser opens pages from persisted storage state.
type Browser interface {
	// NewPage starts a browsing context restored from the given
	// storage-state blob and returns its page.
	NewPage(ctx context.Context, storageState []byte) (Page, error)
}

// Config holds driver settings.
type Config struct {
	Headless          bool
	NavigationTimeout time.Duration
	// MarkerCookie signals a completed interactive login.
	MarkerCookie string
}
