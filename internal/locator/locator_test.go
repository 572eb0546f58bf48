package locator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkit/autoposter/internal/browser"
	"github.com/listkit/autoposter/internal/logger"
)

// fakePage serves queued control snapshots and records actions.
type fakePage struct {
	snapshots [][]browser.Control
	snapIdx   int

	fills   []string
	clicks  []string
	presses []string
	files   []string
}

func (p *fakePage) Navigate(_ context.Context, _ string) error { return nil }

func (p *fakePage) Controls(_ context.Context) ([]browser.Control, error) {
	if len(p.snapshots) == 0 {
		return nil, nil
	}
	snap := p.snapshots[p.snapIdx]
	if p.snapIdx < len(p.snapshots)-1 {
		p.snapIdx++
	}
	return snap, nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.fills = append(p.fills, selector+"="+value)
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *fakePage) Press(_ context.Context, keys ...string) error {
	p.presses = append(p.presses, keys...)
	return nil
}

func (p *fakePage) SetFiles(_ context.Context, selector string, paths ...string) error {
	p.files = append(p.files, selector)
	p.files = append(p.files, paths...)
	return nil
}

func (p *fakePage) Screenshot(_ context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Close() error { return nil }

// recordingStrategy wraps a strategy and logs every attempt on it.
type recordingStrategy struct {
	inner Strategy
	calls *[]string
}

func (r *recordingStrategy) Name() string { return r.inner.Name() }

func (r *recordingStrategy) Locate(controls []browser.Control, target Target) (*Match, error) {
	*r.calls = append(*r.calls, r.inner.Name())
	return r.inner.Locate(controls, target)
}

func newTestChain(strategies ...Strategy) *Chain {
	return NewChain(logger.NewNopLogger(), 0, strategies...)
}

func TestRoleStrategy_UniqueMatch(t *testing.T) {
	page := &fakePage{snapshots: [][]browser.Control{{
		{Selector: "#a", Role: "textbox", Name: "Title", Visible: true, Editable: true},
		{Selector: "#b", Role: "textbox", Name: "Price", Visible: true, Editable: true},
	}}}

	chain := NewChain(logger.NewNopLogger(), 0, DefaultStrategies()...)
	err := chain.Fill(context.Background(), page, Target{
		Field: FieldTitle, Kind: KindText, Label: "Title", Role: "textbox", Value: "Oak dresser",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#a=Oak dresser"}, page.fills)
}

func TestRoleStrategy_AmbiguousDeclines(t *testing.T) {
	controls := []browser.Control{
		{Selector: "#a", Role: "textbox", Name: "Title", Visible: true},
		{Selector: "#b", Role: "textbox", Name: "Title", Visible: true},
	}

	_, err := (&RoleStrategy{}).Locate(controls, Target{Label: "Title", Role: "textbox"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestTextAnchorStrategy_FollowingEditable(t *testing.T) {
	controls := []browser.Control{
		{Selector: "#label", Text: "Price", Visible: true},
		{Selector: "#static", Visible: true},
		{Selector: "#input", Visible: true, Editable: true},
	}

	match, err := (&TextAnchorStrategy{}).Locate(controls, Target{
		Field: FieldPrice, Kind: KindText, Label: "Price",
	})
	require.NoError(t, err)
	assert.Equal(t, "#input", match.Control.Selector)
}

func TestTextAnchorStrategy_SelectReturnsAnchor(t *testing.T) {
	controls := []browser.Control{
		{Selector: "#cond", Text: "Condition", Visible: true},
	}

	match, err := (&TextAnchorStrategy{}).Locate(controls, Target{
		Field: FieldCondition, Kind: KindSelect, Label: "Condition",
	})
	require.NoError(t, err)
	assert.Equal(t, "#cond", match.Control.Selector)
}

func TestStructuralStrategy(t *testing.T) {
	tests := []struct {
		name     string
		controls []browser.Control
		target   Target
		wantSel  string
		wantErr  bool
	}{
		{
			name: "first empty input below threshold",
			controls: []browser.Control{
				{Selector: "#search", Visible: true, Editable: true, Y: 40},
				{Selector: "#title", Visible: true, Editable: true, Y: 220},
			},
			target:  Target{Field: FieldTitle, Kind: KindText},
			wantSel: "#title",
		},
		{
			name: "filled inputs are skipped",
			controls: []browser.Control{
				{Selector: "#title", Visible: true, Editable: true, Value: "Oak dresser", Y: 220},
				{Selector: "#price", Visible: true, Editable: true, Y: 280},
			},
			target:  Target{Field: FieldPrice, Kind: KindText},
			wantSel: "#price",
		},
		{
			name: "first empty input after previous value",
			controls: []browser.Control{
				{Selector: "#other", Visible: true, Editable: true, Y: 120},
				{Selector: "#title", Visible: true, Editable: true, Value: "Oak dresser", Y: 220},
				{Selector: "#price", Visible: true, Editable: true, Y: 280},
			},
			target:  Target{Field: FieldPrice, Kind: KindText, AfterValue: "Oak dresser"},
			wantSel: "#price",
		},
		{
			name: "hidden file input matched by type",
			controls: []browser.Control{
				{Selector: "#upload", Type: "file", Visible: false},
			},
			target:  Target{Field: FieldImage, Kind: KindFile},
			wantSel: "#upload",
		},
		{
			name: "selects never match positionally",
			controls: []browser.Control{
				{Selector: "#combo", Role: "combobox", Visible: true, Y: 300},
			},
			target:  Target{Field: FieldCategory, Kind: KindSelect},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := (&StructuralStrategy{}).Locate(tt.controls, tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoMatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSel, match.Control.Selector)
		})
	}
}

// When only the positional heuristic can match, the semantic strategies
// must still be attempted first, in order.
func TestChain_StrategyOrderIsDeterministic(t *testing.T) {
	var calls []string
	var wrapped []Strategy
	for _, s := range DefaultStrategies() {
		wrapped = append(wrapped, &recordingStrategy{inner: s, calls: &calls})
	}

	page := &fakePage{snapshots: [][]browser.Control{{
		// No role, no name, no label text near it.
		{Selector: "#bare", Visible: true, Editable: true, Y: 250},
	}}}

	chain := newTestChain(wrapped...)
	err := chain.Fill(context.Background(), page, Target{
		Field: FieldTitle, Kind: KindText, Label: "Title", Role: "textbox", Value: "x",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"role", "text_anchor", "structural"}, calls)
	assert.Equal(t, []string{"#bare=x"}, page.fills)
}

func TestChain_FieldNotFound(t *testing.T) {
	page := &fakePage{snapshots: [][]browser.Control{{
		{Selector: "#filled", Visible: true, Editable: true, Value: "taken", Y: 250},
	}}}

	chain := newTestChain(DefaultStrategies()...)
	err := chain.Fill(context.Background(), page, Target{
		Field: FieldPrice, Kind: KindText, Label: "Price", Role: "textbox", Value: "25",
	})

	var notFound *FieldNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, FieldPrice, notFound.Field)
	assert.Empty(t, page.fills)
}

func TestChain_SelectClicksOption(t *testing.T) {
	page := &fakePage{snapshots: [][]browser.Control{
		{
			{Selector: "#cond", Role: "combobox", Name: "Condition", Visible: true},
		},
		{
			{Selector: "#opt-new", Role: "option", Text: "New", Visible: true},
			{Selector: "#opt-used", Role: "option", Text: "Used", Visible: true},
		},
	}}

	chain := newTestChain(DefaultStrategies()...)
	err := chain.Select(context.Background(), page, Target{
		Field: FieldCondition, Kind: KindSelect, Label: "Condition", Role: "combobox", Value: "New",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#cond", "#opt-new"}, page.clicks)
	assert.Empty(t, page.presses)
}

func TestChain_SelectKeyboardFallback(t *testing.T) {
	page := &fakePage{snapshots: [][]browser.Control{
		{
			{Selector: "#cat", Role: "combobox", Name: "Category", Visible: true},
		},
		// Dropdown opened but options are not addressable.
		{},
	}}

	chain := newTestChain(DefaultStrategies()...)
	err := chain.Select(context.Background(), page, Target{
		Field: FieldCategory, Kind: KindSelect, Label: "Category", Role: "combobox", Value: "Furniture",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#cat"}, page.clicks)
	assert.Equal(t, []string{"Home", "ArrowDown", "Enter"}, page.presses)
}

func TestChain_ClickButtonByTextAnchor(t *testing.T) {
	page := &fakePage{snapshots: [][]browser.Control{{
		// Unnamed div acting as a button, identified only by its text.
		{Selector: "#next", Text: "Next", Visible: true},
	}}}

	chain := newTestChain(DefaultStrategies()...)
	err := chain.Click(context.Background(), page, Target{
		Field: FieldNext, Kind: KindButton, Label: "Next", Role: "button",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#next"}, page.clicks)
}

func TestChain_FillFile(t *testing.T) {
	page := &fakePage{snapshots: [][]browser.Control{{
		{Selector: "#upload", Type: "file"},
	}}}

	chain := newTestChain(DefaultStrategies()...)
	err := chain.Fill(context.Background(), page, Target{
		Field: FieldImage, Kind: KindFile, Value: "/tmp/chair.jpg",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#upload", "/tmp/chair.jpg"}, page.files)
	assert.Empty(t, page.fills)
}
