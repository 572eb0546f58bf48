package main

import (
	"github.com/spf13/cobra"

	"github.com/listkit/autoposter/internal/app"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the posting run queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: cfgFile, Version: version})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return a.Run(cmd.Context())
		},
	}
}
