package metrics

import "time"

// AccountTotals holds the lifetime outcome counters for one account.
type AccountTotals struct {
	AccountID string `json:"account_id"`
	Posted    int64  `json:"posted"`
	Failed    int64  `json:"failed"`
}

// Stats aggregates counters across the given accounts.
type Stats struct {
	TotalPosted int64           `json:"total_posted"`
	TotalFailed int64           `json:"total_failed"`
	Accounts    []AccountTotals `json:"accounts"`
	LastRun     time.Time       `json:"last_run"`
}
