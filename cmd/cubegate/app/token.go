package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubegate/cubegate/pkg/auth"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// newTokenCmd creates the token minting command for development and tenant
// onboarding. The signed token carries the security context the gate will
// reconstruct on each request.
func newTokenCmd() *cobra.Command {
	var (
		secret     string
		connection string
		dataset    string

		destType     string
		destHostname string
		destPort     int
		destDatabase string
		destUsername string
		destPassword string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed security context token",
		Long: `Mint an HS256 context token carrying a connection id, dataset, or an
inline destination, signed with the shared API secret. Intended for
development and onboarding; production tokens come from the identity
service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("--api-secret is required")
			}

			sc := tenant.SecurityContext{Connection: connection, Dataset: dataset}
			if destHostname != "" || destDatabase != "" {
				sc.Destination = &tenant.Destination{
					Type:     destType,
					Hostname: destHostname,
					Port:     destPort,
					Database: destDatabase,
					Username: destUsername,
					Password: destPassword,
				}
			}

			token, err := auth.NewIssuer(secret).Mint(sc)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "api-secret", "", "Shared HS256 secret to sign with")
	cmd.Flags().StringVar(&connection, "connection", "", "Connection id to embed")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset to embed")
	cmd.Flags().StringVar(&destType, "destination-type", "postgres", "Inline destination type")
	cmd.Flags().StringVar(&destHostname, "destination-hostname", "", "Inline destination hostname")
	cmd.Flags().IntVar(&destPort, "destination-port", 5432, "Inline destination port")
	cmd.Flags().StringVar(&destDatabase, "destination-database", "", "Inline destination database")
	cmd.Flags().StringVar(&destUsername, "destination-username", "", "Inline destination username")
	cmd.Flags().StringVar(&destPassword, "destination-password", "", "Inline destination password")

	return cmd
}
