// Package classify assigns coarse error categories to posting failures.
//
// Classification is a case-insensitive substring match against the error
// message, evaluated in priority order. It is a best-effort heuristic for
// operator triage only; a title containing the word "limit" can and will
// misclassify, which is acceptable because categories never drive control
// flow.
package classify

import (
	"strings"

	"github.com/listkit/autoposter/internal/domain"
)

// rule maps a set of keywords to a category. First matching rule wins.
type rule struct {
	category domain.ErrorCategory
	keywords []string
}

var rules = []rule{
	{domain.CategorySessionExpired, []string{"session", "cookie", "login"}},
	{domain.CategoryNetworkError, []string{"network", "connection"}},
	{domain.CategoryCaptcha, []string{"captcha"}},
	{domain.CategoryRateLimit, []string{"rate", "limit"}},
}

// Classify buckets an error message into a category.
func Classify(message string) domain.ErrorCategory {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return domain.CategoryUnknown
}
