package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/listkit/autoposter/internal/browser"
	"github.com/listkit/autoposter/internal/config"
	"github.com/listkit/autoposter/internal/logger"
	"github.com/listkit/autoposter/internal/session"
)

// newSessionStore builds just the pieces session commands need; no
// database or Redis connection is required to manage sessions.
func newSessionStore() (*session.Store, logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	// Authentication is interactive, so the browser runs headful
	// regardless of the serve-mode setting.
	driver := browser.NewDriver(browser.Config{
		Headless:          false,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		MarkerCookie:      cfg.Sessions.MarkerCookie,
	}, log)

	store := session.NewStore(session.Config{
		Dir:      cfg.Sessions.Dir,
		LoginURL: cfg.Sessions.LoginURL,
		AuthWait: cfg.Sessions.AuthWait,
	}, driver, log)
	return store, log, nil
}

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage saved browser sessions",
	}

	var account string

	save := &cobra.Command{
		Use:   "save",
		Short: "Open a browser for manual login and save the session",
		Long: `Opens the login page in a visible browser window and waits for the
operator to complete the login. Once the login is detected the
authenticated state is captured and saved for the account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, log, err := newSessionStore()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rec, err := store.Save(cmd.Context(), account)
			if err != nil {
				return err
			}
			fmt.Printf("session saved for %s (%d bytes)\n", rec.AccountID, len(rec.State))
			return nil
		},
	}
	save.Flags().StringVar(&account, "account", "", "account identifier (email)")
	_ = save.MarkFlagRequired("account")

	var invalidateAccount string
	invalidate := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete the saved session for an account",
		RunE: func(_ *cobra.Command, _ []string) error {
			store, log, err := newSessionStore()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := store.Invalidate(invalidateAccount); err != nil {
				return err
			}
			fmt.Printf("session invalidated for %s\n", invalidateAccount)
			return nil
		},
	}
	invalidate.Flags().StringVar(&invalidateAccount, "account", "", "account identifier (email)")
	_ = invalidate.MarkFlagRequired("account")

	cmd.AddCommand(save, invalidate)
	return cmd
}
