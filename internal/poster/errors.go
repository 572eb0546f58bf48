package poster

import "fmt"

// SessionMissingError aborts a listing before any browsing context is
// opened: without a saved session there is nothing to post with.
type SessionMissingError struct {
	AccountID string
}

func (e *SessionMissingError) Error() string {
	return fmt.Sprintf("no saved session for account %s", e.AccountID)
}

// NavigationError wraps a failure to reach the listing-creation page.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ConfirmationError wraps a failure in one of the two final
// confirmation actions ("Next", "Publish").
type ConfirmationError struct {
	Action string
	Err    error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("confirmation %q failed: %v", e.Action, e.Err)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }

// attemptError carries the diagnostic artifact captured for a failed
// attempt alongside the original error.
type attemptError struct {
	err           error
	screenshotRef *string
}

func (e *attemptError) Error() string { return e.err.Error() }

func (e *attemptError) Unwrap() error { return e.err }
