package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ncdav/ncdav-sync/internal/sync"
)

// newSyncCmd builds the sync command: one full pass over all pairs.
func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass over all configured pairs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			client, err := newDavClient(logger)
			if err != nil {
				return err
			}

			store, err := sync.NewStore(cfg.StatePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			engine := sync.NewEngine(store, client, filepath.Base(cfg.StatePath), logger)

			report, err := engine.Sync(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("sync finished: %d pair(s), %d downloaded, %d uploaded, "+
				"%d deleted locally, %d deleted remotely, %d conflict(s), %d failed\n",
				report.Pairs, report.Downloaded, report.Uploaded,
				report.DeletedLocal, report.DeletedRemote, report.Conflicts, report.Failed)

			return nil
		},
	}
}
