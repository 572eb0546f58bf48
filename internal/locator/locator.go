// Package locator finds form controls on an externally-controlled page
// whose DOM carries no stable selectors. Each logical field is resolved
// through an ordered chain of strategies, from semantic signals down to
// positional and keyboard fallbacks; the first strategy that yields a
// usable control wins.
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/listkit/autoposter/internal/browser"
	"github.com/listkit/autoposter/internal/logger"
)

// Field names a logical form field independent of its DOM representation.
type Field string

const (
	FieldImage        Field = "image"
	FieldTitle        Field = "title"
	FieldPrice        Field = "price"
	FieldCategory     Field = "category"
	FieldCondition    Field = "condition"
	FieldDescription  Field = "description"
	FieldAvailability Field = "availability"

	// Confirmation actions located the same way as fields.
	FieldNext    Field = "next"
	FieldPublish Field = "publish"
)

// Kind selects how a located control is actuated.
type Kind int

const (
	// KindText is filled by typing into an editable control.
	KindText Kind = iota
	// KindSelect is a dropdown: click a trigger, then pick an option.
	KindSelect
	// KindFile attaches local files to a file input.
	KindFile
	// KindButton is clicked once located.
	KindButton
)

// Target describes one field to locate and the value to set.
type Target struct {
	Field Field
	Kind  Kind
	// Label is the visible or accessible label expected near the control.
	Label string
	// Role is the expected ARIA role ("textbox", "combobox", "option").
	Role string
	// Value is the text to type, the option label to pick, or the file path.
	Value string
	// AfterValue, when set, anchors the structural heuristic to the
	// control currently holding a previously filled value.
	AfterValue string
	// MinY excludes controls above this Y coordinate from positional
	// matching. Zero means the default threshold.
	MinY float64
}

// Match is a successfully located control, or a keyboard sequence when
// no control could be addressed directly.
type Match struct {
	Control *browser.Control
	Keys    []string
}

// ErrNoMatch is returned by a strategy that found no unique usable
// control. The chain treats it as "try the next strategy"; any other
// error aborts the lookup.
var ErrNoMatch = errors.New("no unique match")

// FieldNotFoundError reports that every strategy failed for a field.
type FieldNotFoundError struct {
	Field Field
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("no usable control found for field %q", e.Field)
}

// Strategy resolves a target against a snapshot of page controls.
// Strategies are pure over the snapshot; the chain performs all page
// interaction. A strategy that does not apply to the target's kind
// returns ErrNoMatch.
type Strategy interface {
	Name() string
	Locate(controls []browser.Control, target Target) (*Match, error)
}

// Chain applies strategies in a fixed order and actuates the first match.
type Chain struct {
	strategies []Strategy
	settle     time.Duration
	log        logger.Logger
}

// NewChain builds a chain over the given strategies, tried in argument
// order. settle is the pause inserted after each page action.
func NewChain(log logger.Logger, settle time.Duration, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		settle:     settle,
		log:        log,
	}
}

// DefaultChain wires the standard strategy order: accessible role and
// name first, then visible-text anchors, then positional heuristics,
// with keyboard navigation as the last resort.
func DefaultChain(log logger.Logger, settle time.Duration) *Chain {
	return NewChain(log, settle, DefaultStrategies()...)
}

// DefaultStrategies returns the standard strategies in chain order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		&RoleStrategy{},
		&TextAnchorStrategy{},
		&StructuralStrategy{},
		&KeyboardStrategy{},
	}
}

// Fill locates a text or file target and sets its value.
func (c *Chain) Fill(ctx context.Context, page browser.Page, target Target) error {
	match, err := c.locate(ctx, page, target)
	if err != nil {
		return err
	}

	switch target.Kind {
	case KindFile:
		err = page.SetFiles(ctx, match.Control.Selector, target.Value)
	default:
		err = page.Fill(ctx, match.Control.Selector, target.Value)
	}
	if err != nil {
		return fmt.Errorf("fill %s: %w", target.Field, err)
	}

	c.pause(ctx)
	return nil
}

// Click locates a button-like target and clicks it.
func (c *Chain) Click(ctx context.Context, page browser.Page, target Target) error {
	match, err := c.locate(ctx, page, target)
	if err != nil {
		return err
	}
	if err := page.Click(ctx, match.Control.Selector); err != nil {
		return fmt.Errorf("click %s: %w", target.Field, err)
	}
	c.pause(ctx)
	return nil
}

// Select locates a dropdown trigger, opens it, and picks the option
// whose label matches target.Value.
func (c *Chain) Select(ctx context.Context, page browser.Page, target Target) error {
	trigger, err := c.locate(ctx, page, target)
	if err != nil {
		return err
	}
	if err := page.Click(ctx, trigger.Control.Selector); err != nil {
		return fmt.Errorf("open %s: %w", target.Field, err)
	}
	c.pause(ctx)

	option := Target{
		Field: target.Field,
		Kind:  KindSelect,
		Label: target.Value,
		Role:  "option",
	}
	match, err := c.locate(ctx, page, option)
	if err != nil {
		return err
	}

	if len(match.Keys) > 0 {
		err = page.Press(ctx, match.Keys...)
	} else {
		err = page.Click(ctx, match.Control.Selector)
	}
	if err != nil {
		return fmt.Errorf("select %s: %w", target.Field, err)
	}

	c.pause(ctx)
	return nil
}

// locate snapshots the page once and runs the strategies in order.
// Ordering matters: semantic strategies must be attempted and fail
// before positional or keyboard ones are consulted.
func (c *Chain) locate(ctx context.Context, page browser.Page, target Target) (*Match, error) {
	controls, err := page.Controls(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot controls: %w", err)
	}

	for _, strategy := range c.strategies {
		match, err := strategy.Locate(controls, target)
		if err == nil {
			c.log.Debug("located field",
				logger.String("field", string(target.Field)),
				logger.String("strategy", strategy.Name()))
			return match, nil
		}
		if !errors.Is(err, ErrNoMatch) {
			return nil, fmt.Errorf("strategy %s: %w", strategy.Name(), err)
		}
		c.log.Debug("strategy missed",
			logger.String("field", string(target.Field)),
			logger.String("strategy", strategy.Name()))
	}

	return nil, &FieldNotFoundError{Field: target.Field}
}

func (c *Chain) pause(ctx context.Context) {
	if c.settle <= 0 {
		return
	}
	t := time.NewTimer(c.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
