// Command sgjobsctl runs operator tasks against the job database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"sgjobs_backend/internal/bootstrap"
	"sgjobs_backend/internal/options"
	"sgjobs_backend/internal/scheduler"
	"sgjobs_backend/platform/db"
	"sgjobs_backend/platform/validator"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sgjobsctl",
		Short:         "Operator tasks for the installation job service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				return os.Setenv("SGJOBS_CONFIG_FILE", cfgFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides SGJOBS_CONFIG_FILE)")

	tokenCmd := &cobra.Command{Use: "token", Short: "Installer link commands"}
	tokenCmd.AddCommand(newTokenIssueCmd())

	teamsCmd := &cobra.Command{Use: "teams", Short: "Team commands"}
	teamsCmd.AddCommand(newTeamsSyncCmd())

	optionsCmd := &cobra.Command{Use: "options", Short: "Stored option commands"}
	optionsCmd.AddCommand(newOptionsSetCmd())

	root.AddCommand(newMigrateCmd(), newSweepCmd(), newReprojectCmd(), tokenCmd, teamsCmd, optionsCmd)
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, _, err := bootstrap.OpenDatabase(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer pool.Close()

			version, err := db.MigrationVersion(cmd.Context(), pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one payment reconciliation pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, svc, err := wire(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.Config.GetRedisURL() != "" {
				rdb, err := scheduler.NewRedisClient(rt.Config)
				if err != nil {
					return err
				}
				defer func() { _ = rdb.Close() }()
				return scheduler.RunSweep(cmd.Context(), svc.Sweep, scheduler.NewSweepGuard(rdb, rt.Config.GetSweepInterval()), rt.Log)
			}

			result, err := svc.Sweep.Run(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}
}

func newReprojectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reproject <jobId>",
		Short: "Write a job's current state to its team calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			rt, svc, err := wire(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			uid, err := svc.Jobs.Service.Reproject(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uid)
			return nil
		},
	}
}

func newTokenIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <jobId>",
		Short: "Rotate a job's installer link and print it",
		Long:  "Issues a new installer link. The previous link stops working and the calendar event is updated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			rt, svc, err := wire(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			link, err := svc.Jobs.Service.RotateLink(cmd.Context(), jobID)
			if link != "" {
				fmt.Fprintln(cmd.OutOrStdout(), link)
			}
			return err
		},
	}
}

func newTeamsSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upsert the configured teams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, svc, err := wire(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := svc.Teams.Service.Sync(cmd.Context(), rt.Config.GetTeams())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d, skipped %d\n", result.Upserted, result.Skipped)
			return nil
		},
	}
}

func newOptionsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a configuration option (empty value clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, _, err := bootstrap.OpenDatabase(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer pool.Close()

			return options.New(pool).Set(cmd.Context(), args[0], args[1])
		},
	}
}

func wire(ctx context.Context) (*bootstrap.Runtime, *bootstrap.Services, error) {
	rt, err := bootstrap.Start(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	svc, err := bootstrap.Wire(rt, validator.New())
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return rt, svc, nil
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
