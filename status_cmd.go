package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ncdav/ncdav-sync/internal/sync"
)

// newStatusCmd prints the configured pairs and how many files each one
// tracks.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured pairs and tracked state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			store, err := sync.NewStore(cfg.StatePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			pairs, err := store.ListPairs(cmd.Context())
			if err != nil {
				return err
			}

			if len(pairs) == 0 {
				fmt.Println("no pairs configured")
				return nil
			}

			for _, p := range pairs {
				count, err := store.CountEntries(cmd.Context(), p.ID)
				if err != nil {
					return err
				}

				fmt.Printf("pair %d: remote %q <-> local %q (%s), %d tracked file(s)\n",
					p.ID, p.RemoteRoot, p.LocalRoot, strings.Join(p.Extensions, ","), count)
			}

			return nil
		},
	}
}
