package main

import (
	"io"

	"github.com/spf13/cobra"
)

// NewRootCommand returns the txctl command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "txctl",
		Short: "Inspect session factory configuration and transaction statements",
		Long: `txctl checks a session factory configuration against a live data source,
parses transaction control statements and lists the registered options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)

	rc.AddCommand(newOptionsCommand(stdin, stdout, stderr))
	rc.AddCommand(newParseCommand(stdin, stdout, stderr))
	rc.AddCommand(newCheckConfigCommand(stdin, stdout, stderr))
	return rc
}
