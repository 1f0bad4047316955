package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kasuganosora/sqlsession/pkg/option"
	// 注册事务与语句相关的 option
	_ "github.com/kasuganosora/sqlsession/pkg/stmt"
	_ "github.com/kasuganosora/sqlsession/pkg/txn"
)

func newOptionsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List registered options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOptions(stdout, option.DefaultRegistry())
		},
	}
}

func printOptions(w io.Writer, r *option.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE")
	for _, k := range r.Keys() {
		fmt.Fprintf(tw, "%s\t%s\n", k.Name(), k.Type())
	}
	return tw.Flush()
}
