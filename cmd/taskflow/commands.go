package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/definition"
	"github.com/aristath/taskflow/internal/orchestrator"
	"github.com/aristath/taskflow/internal/report"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a workflow definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			def, err := definition.Load(args[0])
			if err != nil {
				return err
			}

			// Validation only needs the executors.
			cfg.Store = config.StoreConfig{Driver: config.StoreNone}
			cfg.Events.AMQPURL = ""
			runner, err := orchestrator.NewRunner(cmd.Context(), cfg, orchestrator.RunnerOptions{Logger: a.logger()})
			if err != nil {
				return err
			}
			defer runner.Close()

			order, err := runner.Validate(def)
			if err != nil {
				return err
			}

			result := struct {
				Name  string   `json:"name"`
				Order []string `json:"order"`
			}{def.Name, order}
			return a.output().Print(result, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d tasks, execution order: %s\n", def.Name, len(order), strings.Join(order, " -> "))
			})
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "List stored workflows, or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := a.output()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.StoreNone {
				return fmt.Errorf("history needs a state store; store.driver is %q", cfg.Store.Driver)
			}

			runner, err := orchestrator.NewRunner(ctx, cfg, orchestrator.RunnerOptions{Logger: a.logger()})
			if err != nil {
				return err
			}
			defer runner.Close()

			if len(args) == 1 {
				result, err := runner.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Print(result, func(w io.Writer) { report.Outcome(w, result) })
			}

			summaries, err := runner.History(ctx, limit)
			if err != nil {
				return err
			}
			return out.Print(summaries, func(w io.Writer) { report.Summaries(w, summaries) })
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of workflows to list (0 for all)")
	return cmd
}

func (a *app) executorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "executors",
		Short: "List the configured executors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			type entry struct {
				Name    string   `json:"name"`
				Command string   `json:"command"`
				Args    []string `json:"args,omitempty"`
				WorkDir string   `json:"work_dir,omitempty"`
			}
			entries := make([]entry, 0, len(cfg.Executors))
			for name, ec := range cfg.Executors {
				entries = append(entries, entry{Name: name, Command: ec.Command, Args: ec.Args, WorkDir: ec.WorkDir})
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

			return a.output().Print(entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tCOMMAND")
				fmt.Fprintln(tw, "----\t-------")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\n", e.Name, strings.TrimSpace(e.Command+" "+strings.Join(e.Args, " ")))
				}
				tw.Flush()
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(a.configInitCmd())
	return cmd
}

func (a *app) configInitCmd() *cobra.Command {
	var global, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to .taskflow/config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectPath
			switch {
			case a.configPath != "":
				path = a.configPath
			case global:
				p, err := config.GlobalPath()
				if err != nil {
					return err
				}
				path = p
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}

			result := struct {
				Path string `json:"path"`
			}{path}
			return a.output().Print(result, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote default configuration to %s\n", path)
			})
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Write ~/.taskflow/config.json instead of the project file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
