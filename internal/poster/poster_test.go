package poster_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkit/autoposter/internal/browser"
	"github.com/listkit/autoposter/internal/config"
	"github.com/listkit/autoposter/internal/domain"
	"github.com/listkit/autoposter/internal/locator"
	"github.com/listkit/autoposter/internal/logger"
	"github.com/listkit/autoposter/internal/poster"
	"github.com/listkit/autoposter/internal/session"
)

// fakePage serves a base control snapshot; clicking a dropdown trigger
// reveals its options on the next snapshot, like the real page does.
type fakePage struct {
	controls []browser.Control
	options  map[string][]browser.Control
	open     []browser.Control

	navigated []string
	fills     map[string]string
	clicks    []string
	presses   []string
	files     map[string][]string
	shot      []byte
	closed    int
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Controls(_ context.Context) ([]browser.Control, error) {
	snap := make([]browser.Control, 0, len(p.controls)+len(p.open))
	snap = append(snap, p.controls...)
	snap = append(snap, p.open...)
	return snap, nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	if p.fills == nil {
		p.fills = map[string]string{}
	}
	p.fills[selector] = value
	for i := range p.controls {
		if p.controls[i].Selector == selector {
			p.controls[i].Value = value
		}
	}
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	p.open = p.options[selector]
	return nil
}

func (p *fakePage) Press(_ context.Context, keys ...string) error {
	p.presses = append(p.presses, keys...)
	return nil
}

func (p *fakePage) SetFiles(_ context.Context, selector string, paths ...string) error {
	if p.files == nil {
		p.files = map[string][]string{}
	}
	p.files[selector] = paths
	return nil
}

func (p *fakePage) Screenshot(_ context.Context) ([]byte, error) { return p.shot, nil }

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

type fakeBrowser struct {
	t     *testing.T
	pages []*fakePage
	calls int
}

func (b *fakeBrowser) NewPage(_ context.Context, _ []byte) (browser.Page, error) {
	require.Less(b.t, b.calls, len(b.pages), "unexpected extra browsing context")
	page := b.pages[b.calls]
	b.calls++
	return page, nil
}

type fakeSessions struct {
	state     []byte
	loadsLeft int
}

func (s *fakeSessions) Load(accountID string) (*session.Record, error) {
	if s.loadsLeft <= 0 {
		return nil, session.ErrSessionNotFound
	}
	s.loadsLeft--
	return &session.Record{AccountID: accountID, State: s.state}, nil
}

type fakeListings struct {
	transitions []string
}

func (s *fakeListings) MarkPosting(_ context.Context, id string) error {
	s.transitions = append(s.transitions, "posting:"+id)
	return nil
}

func (s *fakeListings) MarkPosted(_ context.Context, id string) error {
	s.transitions = append(s.transitions, "posted:"+id)
	return nil
}

func (s *fakeListings) MarkFailed(_ context.Context, id, _ string) error {
	s.transitions = append(s.transitions, "failed:"+id)
	return nil
}

type fakeErrorLog struct {
	entries []domain.ErrorLog
}

func (s *fakeErrorLog) Insert(_ context.Context, e *domain.ErrorLog) error {
	s.entries = append(s.entries, *e)
	return nil
}

type fakeTracker struct {
	total     int
	started   bool
	progress  []string
	successes int
	failures  int
	finished  bool
}

func (t *fakeTracker) Start(_ context.Context, _ string, total int) error {
	t.started = true
	t.total = total
	return nil
}

func (t *fakeTracker) RecordProgress(_ context.Context, _, listingID, _ string) error {
	t.progress = append(t.progress, listingID)
	return nil
}

func (t *fakeTracker) RecordSuccess(_ context.Context, _ string) error {
	t.successes++
	return nil
}

func (t *fakeTracker) RecordFailure(_ context.Context, _ string) error {
	t.failures++
	return nil
}

func (t *fakeTracker) Finish(_ context.Context, _ string) error {
	t.finished = true
	return nil
}

type fakeCounters struct {
	posted map[string]int
	failed map[string]int
}

func (c *fakeCounters) RecordPosted(_ context.Context, accountID string) error {
	if c.posted == nil {
		c.posted = map[string]int{}
	}
	c.posted[accountID]++
	return nil
}

func (c *fakeCounters) RecordFailed(_ context.Context, accountID string) error {
	if c.failed == nil {
		c.failed = map[string]int{}
	}
	c.failed[accountID]++
	return nil
}

func postingConfig(t *testing.T) config.PostingConfig {
	t.Helper()
	return config.PostingConfig{
		CreateURL:     "https://marketplace.test/create",
		Category:      "Furniture",
		Condition:     "New",
		Availability:  "In stock",
		ScreenshotDir: t.TempDir(),
	}
}

// fullFormPage builds a page where every field resolves by role and
// accessible name.
func fullFormPage() *fakePage {
	return &fakePage{
		controls: []browser.Control{
			{Selector: "#title", Role: "textbox", Name: "Title", Visible: true, Editable: true, Y: 200},
			{Selector: "#price", Role: "textbox", Name: "Price", Visible: true, Editable: true, Y: 260},
			{Selector: "#cat", Role: "combobox", Name: "Category", Visible: true, Y: 320},
			{Selector: "#cond", Role: "combobox", Name: "Condition", Visible: true, Y: 380},
			{Selector: "#desc", Role: "textbox", Name: "Description", Visible: true, Editable: true, Y: 440},
			{Selector: "#avail", Role: "combobox", Name: "Availability", Visible: true, Y: 500},
			{Selector: "#next", Role: "button", Name: "Next", Visible: true, Y: 560},
			{Selector: "#publish", Role: "button", Name: "Publish", Visible: true, Y: 560},
		},
		options: map[string][]browser.Control{
			"#cat":   {{Selector: "#cat-furniture", Role: "option", Text: "Furniture", Visible: true}},
			"#cond":  {{Selector: "#cond-new", Role: "option", Text: "New", Visible: true}},
			"#avail": {{Selector: "#avail-stock", Role: "option", Text: "In stock", Visible: true}},
		},
		shot: []byte("png"),
	}
}

func testListing(t *testing.T, id, accountID, title string) domain.Listing {
	t.Helper()
	l, err := domain.NewListing(accountID, title, "solid oak, barely used", 120, nil, time.Time{})
	require.NoError(t, err)
	l.ID = id
	return *l
}

func newPoster(
	t *testing.T,
	b *fakeBrowser,
	sessions *fakeSessions,
	listings *fakeListings,
	errLog *fakeErrorLog,
	tracker *fakeTracker,
	counters *fakeCounters,
) *poster.Poster {
	t.Helper()
	log := logger.NewNopLogger()
	chain := locator.DefaultChain(log, 0)
	return poster.New(postingConfig(t), b, chain, sessions, listings, errLog, tracker, counters, log)
}

func TestRunBatch_SingleListingPosted(t *testing.T) {
	page := fullFormPage()
	b := &fakeBrowser{t: t, pages: []*fakePage{page}}
	sessions := &fakeSessions{state: []byte(`{"cookies":[]}`), loadsLeft: 1}
	listings := &fakeListings{}
	errLog := &fakeErrorLog{}
	tracker := &fakeTracker{}
	counters := &fakeCounters{}

	p := newPoster(t, b, sessions, listings, errLog, tracker, counters)
	l := testListing(t, "l-1", "seller@example.com", "Oak dresser")

	err := p.RunBatch(context.Background(), "job-1", []domain.Listing{l})
	require.NoError(t, err)

	assert.True(t, tracker.started)
	assert.Equal(t, 1, tracker.total)
	assert.Equal(t, 1, tracker.successes)
	assert.Equal(t, 0, tracker.failures)
	assert.True(t, tracker.finished)

	assert.Equal(t, []string{"posting:l-1", "posted:l-1"}, listings.transitions)
	assert.Equal(t, []string{"https://marketplace.test/create"}, page.navigated)
	assert.Equal(t, "Oak dresser", page.fills["#title"])
	assert.Equal(t, "120", page.fills["#price"])
	assert.Equal(t, "solid oak, barely used", page.fills["#desc"])
	assert.Contains(t, page.clicks, "#cat-furniture")
	assert.Contains(t, page.clicks, "#cond-new")
	assert.Contains(t, page.clicks, "#avail-stock")
	assert.Contains(t, page.clicks, "#next")
	assert.Contains(t, page.clicks, "#publish")
	assert.Equal(t, 1, page.closed)
	assert.Empty(t, errLog.entries)
	assert.Equal(t, 1, counters.posted["seller@example.com"])
}

func TestRunBatch_PriceFieldNotFound(t *testing.T) {
	// Description precedes title in document order so neither the
	// semantic nor the positional strategies can resolve a price field.
	page := &fakePage{
		controls: []browser.Control{
			{Selector: "#desc", Role: "textbox", Name: "Description", Visible: true, Editable: true, Y: 150},
			{Selector: "#title", Role: "textbox", Name: "Title", Visible: true, Editable: true, Y: 200},
		},
		shot: []byte("png"),
	}
	b := &fakeBrowser{t: t, pages: []*fakePage{page}}
	sessions := &fakeSessions{state: []byte(`{}`), loadsLeft: 1}
	listings := &fakeListings{}
	errLog := &fakeErrorLog{}
	tracker := &fakeTracker{}
	counters := &fakeCounters{}

	p := newPoster(t, b, sessions, listings, errLog, tracker, counters)
	l := testListing(t, "l-2", "seller@example.com", "Oak dresser")

	err := p.RunBatch(context.Background(), "job-2", []domain.Listing{l})
	require.NoError(t, err)

	assert.Equal(t, 0, tracker.successes)
	assert.Equal(t, 1, tracker.failures)
	assert.Equal(t, []string{"posting:l-2", "failed:l-2"}, listings.transitions)
	assert.Equal(t, 1, page.closed)

	require.Len(t, errLog.entries, 1)
	entry := errLog.entries[0]
	assert.Equal(t, "l-2", entry.ListingID)
	assert.Contains(t, entry.Message, `field "price"`)
	require.NotNil(t, entry.ScreenshotRef)
	data, rerr := os.ReadFile(*entry.ScreenshotRef)
	require.NoError(t, rerr)
	assert.Equal(t, []byte("png"), data)

	assert.Equal(t, 1, counters.failed["seller@example.com"])
}

func TestRunBatch_SessionInvalidatedBetweenListings(t *testing.T) {
	page := fullFormPage()
	// Only one browsing context may be opened: the second listing's
	// session read fails before any page exists.
	b := &fakeBrowser{t: t, pages: []*fakePage{page}}
	sessions := &fakeSessions{state: []byte(`{}`), loadsLeft: 1}
	listings := &fakeListings{}
	errLog := &fakeErrorLog{}
	tracker := &fakeTracker{}
	counters := &fakeCounters{}

	p := newPoster(t, b, sessions, listings, errLog, tracker, counters)
	batch := []domain.Listing{
		testListing(t, "l-1", "seller@example.com", "Oak dresser"),
		testListing(t, "l-2", "seller@example.com", "Walnut desk"),
	}

	err := p.RunBatch(context.Background(), "job-3", batch)
	require.NoError(t, err)

	assert.Equal(t, 2, tracker.total)
	assert.Equal(t, 1, tracker.successes)
	assert.Equal(t, 1, tracker.failures)
	assert.Equal(t, 1, b.calls)

	assert.Equal(t, []string{"posting:l-1", "posted:l-1", "failed:l-2"}, listings.transitions)

	require.Len(t, errLog.entries, 1)
	assert.Equal(t, domain.CategorySessionMissing, errLog.entries[0].Category)
	assert.Nil(t, errLog.entries[0].ScreenshotRef)
}

func TestRunBatch_CancelledBeforeStartSkipsAll(t *testing.T) {
	b := &fakeBrowser{t: t}
	sessions := &fakeSessions{loadsLeft: 1}
	listings := &fakeListings{}
	tracker := &fakeTracker{}

	p := newPoster(t, b, sessions, listings, &fakeErrorLog{}, tracker, &fakeCounters{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.RunBatch(ctx, "job-4", []domain.Listing{
		testListing(t, "l-1", "seller@example.com", "Oak dresser"),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, tracker.successes)
	assert.Equal(t, 0, tracker.failures)
	assert.True(t, tracker.finished)
	assert.Empty(t, listings.transitions)
	assert.Equal(t, 0, b.calls)
}
