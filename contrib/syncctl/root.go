package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync.go"
	"github.com/fieldsync/fieldsync.go/pkg/connectivity"
	zerologadapter "github.com/fieldsync/fieldsync.go/pkg/logger/zerolog"
	remotehttp "github.com/fieldsync/fieldsync.go/pkg/remote/http"
	"github.com/fieldsync/fieldsync.go/pkg/store/bolt"
)

type options struct {
	storePath string
	remoteURL string
	token     string
}

func newRootCmd(out zerolog.Logger) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "syncctl",
		Short:         "Inspect and manage an offline mutation queue file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.storePath, "store", "fieldsync.db", "path to the queue file")
	root.PersistentFlags().StringVar(&opts.remoteURL, "remote", "", "base URL of the remote backend (drain only)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token for the remote backend")

	root.AddCommand(
		newPendingCmd(opts),
		newDeadCmd(opts),
		newDrainCmd(opts, out),
		newClearCmd(opts, out),
	)
	return root
}

func newPendingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List mutations waiting to sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listMutations(cmd, opts, false)
		},
	}
}

func newDeadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dead",
		Short: "List mutations that need manual resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listMutations(cmd, opts, true)
		},
	}
}

func newDrainCmd(opts *options, out zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay pending mutations against the remote backend once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.remoteURL == "" {
				return fmt.Errorf("--remote is required for drain")
			}

			client, err := fieldsync.New(fieldsync.Config{
				StorePath: opts.storePath,
				Remote:    remotehttp.New(opts.remoteURL).WithToken(opts.token),
				Monitor:   connectivity.NewManual(connectivity.Reachable),
				Logger:    zerologadapter.New(out),
			})
			if err != nil {
				return err
			}
			defer client.Close()

			if client.Degraded() {
				return fmt.Errorf("queue file %s could not be opened (is the application running?)", opts.storePath)
			}

			summary, err := client.Drain(cmd.Context())
			if err != nil {
				return err
			}
			out.Info().
				Int("applied", summary.Applied).
				Int("retried", summary.Retried).
				Int("dead", summary.Dead).
				Int("remaining", summary.Remaining).
				Bool("deferred", summary.Deferred).
				Msg("drain finished")
			return nil
		},
	}
}

func newClearCmd(opts *options, out zerolog.Logger) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued mutation (queued writes are lost)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to drop queued writes without --force")
			}
			st, err := bolt.Open(opts.storePath)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(cmd.Context()); err != nil {
				return err
			}
			out.Info().Str("store", opts.storePath).Msg("queue cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm dropping queued writes")
	return cmd
}

func listMutations(cmd *cobra.Command, opts *options, dead bool) error {
	st, err := bolt.Open(opts.storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	all, err := st.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENQUEUED\tKIND\tCOLLECTION\tATTEMPTS\tLAST ERROR")
	for _, m := range all {
		if m.Dead != dead {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			m.ID, m.EnqueuedAt.Format(time.RFC3339), m.Kind, m.Collection, m.AttemptCount, m.LastError)
	}
	return w.Flush()
}
