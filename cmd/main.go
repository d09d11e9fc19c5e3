package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/env"
	"github.com/projectai397/sakshi-platform-sub002/src/store"
	"github.com/projectai397/sakshi-platform-sub002/src/svc"
)

// Injected via -ldflags -X
var VERSION = "sakshi-platform-development"

type rootOptions struct {
	envFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "sakshi",
		Short:         "Sakshi platform backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "environment file")
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newPayoutCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), VERSION)
		},
	})
	return cmd
}

// withPlatform loads the environment, builds the services and closes them
// after fn returns
func withPlatform(ctx context.Context, opts *rootOptions, fn func(p *svc.Platform) error) error {
	v, err := svc.LoadEnv(opts.envFile)
	if err != nil {
		return err
	}
	defer zap.L().Sync()
	zap.L().Info("starting service", zap.String("name", "sakshi-platform"), zap.String("version", VERSION))
	p, err := svc.Build(ctx, v, VERSION)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the payout scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(cmd.Context(), opts, func(p *svc.Platform) error {
				return p.Serve(cmd.Context())
			})
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := svc.LoadEnv(opts.envFile)
			if err != nil {
				return err
			}
			return store.Migrate(v.GetString(env.DATABASE_DSN))
		},
	}
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Load catalog items from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(cmd.Context(), opts, func(p *svc.Platform) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				n, err := p.Catalog.LoadSeed(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d items\n", n)
				return nil
			})
		},
	}
}

func newPayoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "payout",
		Short: "Run one SAK payout batch and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(cmd.Context(), opts, func(p *svc.Platform) error {
				rep, conf, err := p.PayoutOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "batch %s: paid %d, skipped %d, failed %d, total %s; confirmed %d of %d\n",
					rep.BatchTs.Format("2006-01-02 15:04"), rep.Paid, rep.Skipped, rep.Failed, rep.TotalDecN,
					conf.Confirmed, conf.Total)
				return nil
			})
		},
	}
}
