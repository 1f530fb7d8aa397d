package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ncdav/ncdav-sync/internal/sync"
)

// newPairCmd groups the pair registry subcommands.
func newPairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Manage sync pairs",
	}

	cmd.AddCommand(newPairAddCmd())
	cmd.AddCommand(newPairListCmd())
	cmd.AddCommand(newPairRemoveCmd())

	return cmd
}

func newPairAddCmd() *cobra.Command {
	var flagRemote, flagLocal, flagExt string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a sync pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			localAbs, err := filepath.Abs(flagLocal)
			if err != nil {
				return fmt.Errorf("resolving local path: %w", err)
			}

			store, err := sync.NewStore(cfg.StatePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			pair, err := store.AddPair(cmd.Context(), flagRemote, localAbs, splitExtensions(flagExt))
			if err != nil {
				return err
			}

			fmt.Printf("pair %d added: remote %q <-> local %q (%s)\n",
				pair.ID, pair.RemoteRoot, pair.LocalRoot, strings.Join(pair.Extensions, ","))

			return nil
		},
	}

	cmd.Flags().StringVar(&flagRemote, "remote", "", "remote folder (relative to the user root, empty = root)")
	cmd.Flags().StringVar(&flagLocal, "local", "", "local directory")
	cmd.Flags().StringVar(&flagExt, "ext", sync.WildcardExtension,
		"comma-separated extension allowlist, .* = any")
	cmd.MarkFlagRequired("local")

	return cmd
}

func newPairListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sync pairs",
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
				fmt.Printf("%d\tremote %q\tlocal %q\t%s\n",
					p.ID, p.RemoteRoot, p.LocalRoot, strings.Join(p.Extensions, ","))
			}

			return nil
		},
	}
}

func newPairRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a sync pair and its tracked state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pair id %q", args[0])
			}

			store, err := sync.NewStore(cfg.StatePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeletePair(cmd.Context(), id); err != nil {
				return err
			}

			fmt.Printf("pair %d removed\n", id)

			return nil
		},
	}
}

// splitExtensions parses the --ext flag into the allowlist form.
func splitExtensions(csv string) []string {
	var out []string

	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		out = append(out, part)
	}

	return out
}
