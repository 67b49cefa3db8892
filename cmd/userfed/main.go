// Command userfed verifies passwords against an existing SQL user table and
// serves the lookups an identity platform needs to federate those users.
//
//	userfed serve --config provider.yaml --addr :8080 --watch
//	userfed verify alice --config provider.yaml < password.txt
//	userfed check-config --config provider.yaml
//
// Every configuration key can also be given as USERFED_<KEY> in the
// environment or a .env file, e.g. USERFED_CONNECTION_URL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/koustreak/userfed/internal/database/mysql"
	_ "github.com/koustreak/userfed/internal/database/oracle"
	_ "github.com/koustreak/userfed/internal/database/postgres"
	_ "github.com/koustreak/userfed/internal/database/sqlite"
	_ "github.com/koustreak/userfed/internal/database/sqlserver"
)

var (
	// Version information (set by build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.Execute()
}

func newRootCommand() *cobra.Command {
	app := newApp()

	root := &cobra.Command{
		Use:           "userfed",
		Short:         "SQL user federation for identity platforms",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}
	app.bindFlags(root)

	root.AddCommand(
		newServeCommand(app),
		newVerifyCommand(app),
		newCheckConfigCommand(app),
	)
	return root
}
