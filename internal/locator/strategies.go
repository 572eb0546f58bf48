package locator

import (
	"strings"

	"github.com/listkit/autoposter/internal/browser"
)

// defaultMinY keeps positional matching below the page header, which
// carries search boxes that would otherwise win "first empty input".
const defaultMinY = 100.0

// RoleStrategy matches on ARIA role plus accessible name. It is the
// most specific strategy and requires exactly one visible candidate.
type RoleStrategy struct{}

func (s *RoleStrategy) Name() string { return "role" }

func (s *RoleStrategy) Locate(controls []browser.Control, target Target) (*Match, error) {
	if target.Role == "" || target.Label == "" {
		return nil, ErrNoMatch
	}

	var found *browser.Control
	for i := range controls {
		ctl := &controls[i]
		if !ctl.Visible || !strings.EqualFold(ctl.Role, target.Role) {
			continue
		}
		if !labelMatches(ctl, target.Label) {
			continue
		}
		if found != nil {
			return nil, ErrNoMatch
		}
		found = ctl
	}
	if found == nil {
		return nil, ErrNoMatch
	}
	return &Match{Control: found}, nil
}

// TextAnchorStrategy finds a visible text node equal to the label and
// resolves the control relative to it: the nearest following editable
// for text fields, the anchor itself for dropdown triggers and options
// (the target UI opens dropdowns on label clicks).
type TextAnchorStrategy struct{}

func (s *TextAnchorStrategy) Name() string { return "text_anchor" }

func (s *TextAnchorStrategy) Locate(controls []browser.Control, target Target) (*Match, error) {
	if target.Label == "" || target.Kind == KindFile {
		return nil, ErrNoMatch
	}

	anchor := -1
	for i := range controls {
		ctl := &controls[i]
		if !ctl.Visible || !strings.EqualFold(strings.TrimSpace(ctl.Text), target.Label) {
			continue
		}
		if anchor >= 0 {
			return nil, ErrNoMatch
		}
		anchor = i
	}
	if anchor < 0 {
		return nil, ErrNoMatch
	}

	if target.Kind == KindSelect || target.Kind == KindButton {
		return &Match{Control: &controls[anchor]}, nil
	}

	for i := anchor + 1; i < len(controls); i++ {
		ctl := &controls[i]
		if ctl.Visible && ctl.Editable {
			return &Match{Control: ctl}, nil
		}
	}
	return nil, ErrNoMatch
}

// StructuralStrategy falls back to document position: the first empty
// editable input below the Y threshold, or the first empty input after
// the control holding a previously filled value. File inputs are
// matched by type alone since the target UI keeps them hidden behind a
// styled button.
type StructuralStrategy struct{}

func (s *StructuralStrategy) Name() string { return "structural" }

func (s *StructuralStrategy) Locate(controls []browser.Control, target Target) (*Match, error) {
	if target.Kind == KindFile {
		for i := range controls {
			ctl := &controls[i]
			if strings.EqualFold(ctl.Type, "file") {
				return &Match{Control: ctl}, nil
			}
		}
		return nil, ErrNoMatch
	}

	if target.Kind == KindSelect || target.Kind == KindButton {
		// Positional guessing across dropdowns and buttons picks the
		// wrong control too often to be worth a fallback here.
		return nil, ErrNoMatch
	}

	if target.AfterValue != "" {
		return s.locateAfter(controls, target.AfterValue)
	}

	minY := target.MinY
	if minY <= 0 {
		minY = defaultMinY
	}
	for i := range controls {
		ctl := &controls[i]
		if ctl.Visible && ctl.Editable && ctl.Value == "" && ctl.Y > minY {
			return &Match{Control: ctl}, nil
		}
	}
	return nil, ErrNoMatch
}

func (s *StructuralStrategy) locateAfter(controls []browser.Control, value string) (*Match, error) {
	after := -1
	for i := range controls {
		if controls[i].Value == value {
			after = i
			break
		}
	}
	if after < 0 {
		return nil, ErrNoMatch
	}
	for i := after + 1; i < len(controls); i++ {
		ctl := &controls[i]
		if ctl.Visible && ctl.Editable && ctl.Value == "" {
			return &Match{Control: ctl}, nil
		}
	}
	return nil, ErrNoMatch
}

// KeyboardStrategy is the last resort for dropdown options only: with
// the dropdown already open, jump to the top of the option list, step
// to the first option and confirm. It cannot honor the requested
// option label, but an opened dropdown with no addressable options
// leaves nothing better.
type KeyboardStrategy struct{}

func (s *KeyboardStrategy) Name() string { return "keyboard" }

func (s *KeyboardStrategy) Locate(_ []browser.Control, target Target) (*Match, error) {
	if target.Role != "option" {
		return nil, ErrNoMatch
	}
	// Home first: some dropdowns open with focus mid-list.
	return &Match{Keys: []string{"Home", "ArrowDown", "Enter"}}, nil
}

// labelMatches compares the accessible name, falling back to visible
// text for elements whose name derives from content (options, buttons).
func labelMatches(ctl *browser.Control, label string) bool {
	if strings.EqualFold(strings.TrimSpace(ctl.Name), label) {
		return true
	}
	return ctl.Name == "" && strings.EqualFold(strings.TrimSpace(ctl.Text), label)
}
