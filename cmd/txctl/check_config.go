package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kasuganosora/sqlsession/pkg/config"
	"github.com/kasuganosora/sqlsession/pkg/executor"
	"github.com/kasuganosora/sqlsession/pkg/session"
)

type checkConfigOptions struct {
	sessionName string
	readonly    bool
}

func newCheckConfigCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &checkConfigOptions{}
	cmd := &cobra.Command{
		Use:   "check-config [file]",
		Short: "Build a session factory from a config file and open one session",
		Long: `Load the configuration, connect to its data source, build the session
factory and run one empty transaction. Without a file the default
configuration (in-memory SQLite) is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runCheckConfig(cmd.Context(), stdout, path, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.sessionName, "session-name", "txctl", "name of the probe session")
	flags.BoolVar(&opts.readonly, "readonly", false, "open the probe session readonly")
	return cmd
}

func runCheckConfig(ctx context.Context, w io.Writer, path string, opts *checkConfigOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	db, dialect, err := executor.OpenDB(ctx, cfg.DataSource)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := session.NewFactory(cfg, session.FactoryOptions{
		Executor: executor.NewExecutorFactory(db, dialect, executor.Options{}),
		Scanner:  executor.NewTableScanner(ctx, db, dialect),
	})
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := f.Builder().Name(opts.sessionName).Readonly(opts.readonly).Build(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	info, err := s.StartTransaction(ctx, nil)
	if err != nil {
		return err
	}
	if err := s.Rollback(ctx); err != nil {
		return err
	}

	fmt.Fprintf(w, "factory:     %s\n", f.Name())
	fmt.Fprintf(w, "driver:      %s\n", dialect.DriverName())
	fmt.Fprintf(w, "isolation:   %s\n", f.DefaultIsolation())
	fmt.Fprintf(w, "tables:      %d\n", f.TableCount())
	fmt.Fprintf(w, "xa:          %t\n", s.SupportXa())
	fmt.Fprintf(w, "session:     %s\n", s)
	fmt.Fprintf(w, "transaction: %s\n", info)
	m := f.Metrics().GetSnapshot()
	fmt.Fprintf(w, "metrics:     begins=%d commits=%d rollbacks=%d\n", m.Begins, m.Commits, m.Rollbacks)
	return nil
}
