package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ncdav/ncdav-sync/internal/config"
)

// newLoginCmd stores server credentials, either from flags or from a
// scanned Nextcloud login QR payload.
func newLoginCmd() *cobra.Command {
	var flagUser, flagPassword, flagServer, flagQR string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store Nextcloud server credentials",
		RunE: func(_ *cobra.Command, _ []string) error {
			creds := &config.Credentials{
				Username: flagUser,
				Password: flagPassword,
				BaseURL:  flagServer,
			}

			if flagQR != "" {
				parsed, err := config.ParseQRPayload(flagQR)
				if err != nil {
					return err
				}

				creds = parsed
			}

			if err := creds.Validate(); err != nil {
				return err
			}

			if err := config.StoreCredentials(config.NewFileCredentialStore(""), creds); err != nil {
				return err
			}

			fmt.Printf("credentials stored for %s at %s\n", creds.Username, creds.BaseURL)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagUser, "user", "", "Nextcloud username")
	cmd.Flags().StringVar(&flagPassword, "password", "", "app password")
	cmd.Flags().StringVar(&flagServer, "server", "", "server base URL")
	cmd.Flags().StringVar(&flagQR, "qr", "", "nc://login/... payload from the mobile QR code")

	return cmd
}
