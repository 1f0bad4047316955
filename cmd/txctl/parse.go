package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kasuganosora/sqlsession/pkg/parser"
)

func newParseCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <sql>",
		Short: "Parse a transaction control statement",
		Long: `Parse a transaction control statement and print how a session would
apply it. Supported statements are BEGIN, START TRANSACTION, COMMIT,
ROLLBACK and SET [SESSION] TRANSACTION.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := parser.ParseTxControl(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, ctl)
			return nil
		},
	}
}
