package metrics

import (
	"fmt"

	"github.com/listkit/autoposter/internal/session"
)

const (
	keyPrefix  = "autoposter:metrics"
	keyLastRun = keyPrefix + ":last_run"
)

// Keys builds Redis keys consistently. Account identifiers are
// normalized the same way the session store normalizes them, so both
// subsystems agree on the account's canonical key form.
type Keys struct{}

func (Keys) Posted(accountID string) string {
	return fmt.Sprintf("%s:posted:%s", keyPrefix, session.NormalizeKey(accountID))
}

func (Keys) Failed(accountID string) string {
	return fmt.Sprintf("%s:failed:%s", keyPrefix, session.NormalizeKey(accountID))
}
