package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iceymoss/go-taskplan/internal/engine"
	"github.com/iceymoss/go-taskplan/internal/server"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskplan",
		Short: "Declarative file report tasks with up-to-date checks and reversible cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (yaml)")
	cmd.PersistentFlags().StringP("log", "l", "warn", "Set log level. Available: debug, info, warn, error")
	cmd.PersistentFlags().String("root", "", "root directory of sources and reports (overrides config)")
	cmd.PersistentFlags().Int("workers", 0, "max parallel tasks per layer (overrides config)")

	cmd.AddCommand(newListCmd(), newPlanCmd(), newRunCmd(), newCleanCmd(), newWatchCmd(), newServeCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List task families",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range a.planner.Registry().List() {
				topics := make([]string, 0, len(f.Topics))
				for _, t := range f.Topics {
					topics = append(topics, t.String())
				}
				fmt.Fprintf(out, "%-24s %-28s %s\n", f.Name, f.Prefix+"*", strings.Join(topics, ","))
			}
			return nil
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <family>...",
		Short: "Print generated task descriptors as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			g, err := a.planner.GraphAll(args...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(g.Specs())
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <family>...",
		Short: "Run task families, skipping up-to-date tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			a, err := newApp(cmd, engine.WithForce(force))
			if err != nil {
				return err
			}
			g, err := a.planner.GraphAll(args...)
			if err != nil {
				return err
			}
			summary, err := a.runner.Run(cmd.Context(), g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range summary.Results {
				fmt.Fprintf(out, "%-12s %s", r.Status, r.ID)
				if r.Error != "" {
					fmt.Fprintf(out, "  (%s)", r.Error)
				}
				fmt.Fprintln(out)
			}
			if failed := summary.Count(engine.StatusFailed); failed > 0 {
				return fmt.Errorf("%d task(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "run even if targets are up to date")
	return cmd
}

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean <family>...",
		Short: "Remove files generated by task families",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			withSources, _ := cmd.Flags().GetBool("with-sources")
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, family := range args {
				// 源文件被多个任务族共享，只在最后一个任务族清理完之后删除
				report, err := a.sched.Clean(cmd.Context(), family, withSources && i == len(args)-1)
				if err != nil {
					return err
				}
				for _, p := range report.Removed {
					fmt.Fprintf(out, "removed  %s\n", p)
				}
				for _, w := range report.Warnings {
					fmt.Fprintf(out, "warning  %v\n", w)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("with-sources", false, "also remove the created source files")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <family>",
		Short: "Re-run a task family whenever a source file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := engine.NewWatcher(a.sched, args[0], a.planner.Generator().Root(), a.sources())
			return w.Watch(ctx)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API and run scheduled families",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			srv := server.NewServer(a.cfg, a.sched, a.planner)

			port := a.cfg.Server.Port
			if port == "" {
				port = ":8080"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🌐 API running at http://localhost%s\n", port)
			return srv.Run(port)
		},
	}
}
