// Package session persists authenticated browsing-context snapshots,
// one per external account.
//
// A snapshot is an opaque storage-state blob (cookies plus origin
// storage) captured after a manual login. There is no expiry: a snapshot
// is trusted until a posting attempt proves it invalid, at which point
// the operator re-runs Save.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/listkit/autoposter/internal/logger"
)

// ErrSessionNotFound is returned by Load when no snapshot exists for the account.
var ErrSessionNotFound = errors.New("session not found")

// ErrAuthenticationTimeout is returned by Save when the operator did not
// complete the interactive login within the configured wait window.
var ErrAuthenticationTimeout = errors.New("authentication timed out")

// ErrLoginNotDetected is what an Authenticator returns when the wait
// window elapsed without a completion signal. Save maps it to
// ErrAuthenticationTimeout.
var ErrLoginNotDetected = errors.New("login not detected")

// Record is one persisted session snapshot.
type Record struct {
	AccountID  string
	State      []byte
	ModifiedAt time.Time
}

// Authenticator runs an interactive login flow and returns the captured
// storage state. Implementations must respect the wait bound and return
// ErrLoginNotDetected when no completion signal was observed.
type Authenticator interface {
	Authenticate(ctx context.Context, loginURL string, wait time.Duration) ([]byte, error)
}

// Config holds session store settings.
type Config struct {
	Dir      string
	LoginURL string
	AuthWait time.Duration
}

// Store persists one storage-state blob per account under Dir.
type Store struct {
	cfg    Config
	auth   Authenticator
	logger logger.Logger
}

// NewStore creates a session store. The directory is created lazily on
// the first Save.
func NewStore(cfg Config, auth Authenticator, log logger.Logger) *Store {
	return &Store{cfg: cfg, auth: auth, logger: log}
}

// NormalizeKey derives the deterministic storage key for an account
// identifier: lowercased, with "@" and "." replaced by "_".
func NormalizeKey(accountID string) string {
	key := strings.ToLower(strings.TrimSpace(accountID))
	key = strings.ReplaceAll(key, "@", "_")
	key = strings.ReplaceAll(key, ".", "_")
	return key
}

func (s *Store) path(accountID string) string {
	return filepath.Join(s.cfg.Dir, NormalizeKey(accountID)+".json")
}

// Save runs the interactive authentication flow and persists the captured
// state, replacing any previous snapshot for the account. It blocks until
// the operator completes the login or the wait window elapses.
func (s *Store) Save(ctx context.Context, accountID string) (*Record, error) {
	s.logger.Info("starting interactive authentication",
		logger.String("account_id", accountID),
		logger.Duration("wait", s.cfg.AuthWait))

	state, err := s.auth.Authenticate(ctx, s.cfg.LoginURL, s.cfg.AuthWait)
	if err != nil {
		if errors.Is(err, ErrLoginNotDetected) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no login observed within %v", ErrAuthenticationTimeout, s.cfg.AuthWait)
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	// Write via temp file + rename so a crash cannot leave a torn snapshot.
	path := s.path(accountID)
	tmp, err := os.CreateTemp(s.cfg.Dir, NormalizeKey(accountID)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(state); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("persist session file: %w", err)
	}

	s.logger.Info("session saved",
		logger.String("account_id", accountID),
		logger.Int("state_bytes", len(state)))

	return &Record{AccountID: accountID, State: state, ModifiedAt: time.Now()}, nil
}

// Load returns the persisted snapshot for the account, or
// ErrSessionNotFound when none exists. No freshness check is performed.
func (s *Store) Load(accountID string) (*Record, error) {
	path := s.path(accountID)

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: account %s", ErrSessionNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("stat session file: %w", err)
	}

	state, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	return &Record{AccountID: accountID, State: state, ModifiedAt: info.ModTime()}, nil
}

// Invalidate deletes the snapshot for the account. Deleting an absent
// snapshot is not an error.
func (s *Store) Invalidate(accountID string) error {
	err := os.Remove(s.path(accountID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	s.logger.Info("session invalidated", logger.String("account_id", accountID))
	return nil
}

// Stat reports whether a snapshot exists and how old it is.
func (s *Store) Stat(accountID string) (exists bool, age time.Duration, err error) {
	info, statErr := os.Stat(s.path(accountID))
	if errors.Is(statErr, os.ErrNotExist) {
		return false, 0, nil
	}
	if statErr != nil {
		return false, 0, fmt.Errorf("stat session file: %w", statErr)
	}
	return true, time.Since(info.ModTime()), nil
}
