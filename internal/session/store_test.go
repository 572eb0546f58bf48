package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkit/autoposter/internal/logger"
	"github.com/listkit/autoposter/internal/session"
)

// fakeAuthenticator returns a canned state or error without opening a browser.
type fakeAuthenticator struct {
	state []byte
	err   error
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, _ string, _ time.Duration) ([]byte, error) {
	return f.state, f.err
}

func newStore(t *testing.T, auth session.Authenticator) *session.Store {
	t.Helper()
	return session.NewStore(session.Config{
		Dir:      t.TempDir(),
		LoginURL: "https://example.com/login",
		AuthWait: time.Minute,
	}, auth, logger.NewNopLogger())
}

func TestNormalizeKey(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"seller@example.com", "seller_example_com"},
		{"Seller@Example.COM", "seller_example_com"},
		{"  padded@mail.net ", "padded_mail_net"},
		{"plainname", "plainname"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, session.NormalizeKey(tc.in))
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	state := []byte(`{"cookies":[{"name":"c_user","value":"123"}],"origins":[]}`)
	store := newStore(t, &fakeAuthenticator{state: state})

	rec, err := store.Save(context.Background(), "seller@example.com")
	require.NoError(t, err)
	assert.Equal(t, state, rec.State)

	loaded, err := store.Load("seller@example.com")
	require.NoError(t, err)
	// Byte-identical round trip.
	assert.Equal(t, state, loaded.State)
	assert.Equal(t, "seller@example.com", loaded.AccountID)
	assert.False(t, loaded.ModifiedAt.IsZero())
}

func TestStore_SaveOverwritesPreviousSnapshot(t *testing.T) {
	auth := &fakeAuthenticator{state: []byte(`{"cookies":[]}`)}
	store := newStore(t, auth)

	_, err := store.Save(context.Background(), "seller@example.com")
	require.NoError(t, err)

	auth.state = []byte(`{"cookies":[{"name":"fresh","value":"1"}]}`)
	_, err = store.Save(context.Background(), "seller@example.com")
	require.NoError(t, err)

	loaded, err := store.Load("seller@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.state, loaded.State)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newStore(t, &fakeAuthenticator{})

	_, err := store.Load("nobody@example.com")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStore_SaveAuthenticationTimeout(t *testing.T) {
	store := newStore(t, &fakeAuthenticator{err: session.ErrLoginNotDetected})

	_, err := store.Save(context.Background(), "seller@example.com")
	assert.ErrorIs(t, err, session.ErrAuthenticationTimeout)
}

func TestStore_SaveAuthenticationFailure(t *testing.T) {
	store := newStore(t, &fakeAuthenticator{err: errors.New("browser crashed")})

	_, err := store.Save(context.Background(), "seller@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrAuthenticationTimeout)
}

func TestStore_Invalidate(t *testing.T) {
	store := newStore(t, &fakeAuthenticator{state: []byte(`{}`)})

	_, err := store.Save(context.Background(), "seller@example.com")
	require.NoError(t, err)

	require.NoError(t, store.Invalidate("seller@example.com"))

	_, err = store.Load("seller@example.com")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// Invalidating an absent snapshot is not an error.
	require.NoError(t, store.Invalidate("seller@example.com"))
}

func TestStore_Stat(t *testing.T) {
	store := newStore(t, &fakeAuthenticator{state: []byte(`{}`)})

	exists, _, err := store.Stat("seller@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Save(context.Background(), "seller@example.com")
	require.NoError(t, err)

	exists, age, err := store.Stat("seller@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.GreaterOrEqual(t, age, time.Duration(0))
}
