package browser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkit/autoposter/internal/browser"
)

// Snapshots written by the previous tooling must keep decoding.
func TestDecodeStorageState_LegacyFormat(t *testing.T) {
	blob := []byte(`{
		"cookies": [
			{"name": "c_user", "value": "100001", "domain": ".facebook.com",
			 "path": "/", "expires": 1767225600, "httpOnly": true, "secure": true,
			 "sameSite": "None"}
		],
		"origins": [
			{"origin": "https://www.facebook.com",
			 "localStorage": [{"name": "Session", "value": "abc"}]}
		]
	}`)

	state, err := browser.DecodeStorageState(blob)
	require.NoError(t, err)

	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "c_user", state.Cookies[0].Name)
	assert.True(t, state.Cookies[0].HTTPOnly)

	require.Len(t, state.Origins, 1)
	assert.Equal(t, "https://www.facebook.com", state.Origins[0].Origin)
	require.Len(t, state.Origins[0].LocalStorage, 1)
	assert.Equal(t, "Session", state.Origins[0].LocalStorage[0].Name)
}

func TestDecodeStorageState_Invalid(t *testing.T) {
	_, err := browser.DecodeStorageState([]byte(`{"cookies": "nope"`))
	assert.Error(t, err)
}
