package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/bashhack/lockmux/internal/constants"
	"github.com/bashhack/lockmux/pkg/lock"
)

// Execute runs the command line args against a fresh command tree
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.Command()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// Command builds the lockctl command tree. Flags are bound to the app's
// config; the config is finalized before any subcommand runs.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   constants.AppName,
		Short: "Portable inter-process and intra-process locks",
		Long: `lockctl runs commands under locks backed by System V semaphores, fcntl
record locks, flock, process-shared mutexes or in-process locks, and cleans
up the backing files those locks leave behind.`,
		Version:       a.versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.Initialize(cmd.Flags())
		},
	}
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)
	root.SetVersionTemplate(constants.AppName + " {{.Version}}\n")

	a.Config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		a.mechsCmd(),
		a.runCmd(),
		a.pruneCmd(),
		a.versionCmd(),
	)

	return root
}

func (a *App) mechsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mechs",
		Short: "List lock mechanisms and whether they work on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.printMechanisms(cmd.OutOrStdout())
			return nil
		},
	}
}

func (a *App) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- COMMAND [ARGS...]",
		Short: "Run a command while holding a lock",
		Long: `Run acquires a lock, runs COMMAND with the lock handle in $` + lock.HandleEnv + `
and releases the lock when COMMAND exits. The exit status of COMMAND is
passed through. If the lock cannot be taken with --nonblock or within
--wait, run exits with status 75 without starting COMMAND.

A lock named with --name is kept after the command exits; use prune to
remove backing files nobody holds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Run(cmd.Context(), args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	a.Config.BindRunFlags(cmd.Flags())

	return cmd
}

func (a *App) pruneCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune [PATTERN...]",
		Short: "Remove backing files that no process holds",
		Long: `Prune removes every backing file matching PATTERN on which a non-blocking
exclusive lock can be taken. Patterns use doublestar syntax (** matches any
number of directories) and are relative to the lock directory. Without a
pattern, prune considers the files generated by lockmux.

Holders are detected with --mech, which must be flock (the default) or
fcntl.`,
		RunE: func(_ *cobra.Command, args []string) error {
			return a.Prune(args, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without removing anything")

	return cmd
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// Printing the version needs no configuration
			return nil
		},
		Run: func(*cobra.Command, []string) {
			a.ShowVersion()
		},
	}
}

// printMechanisms writes one row per mechanism with its capabilities and
// whether it passed its probe on this host
func (a *App) printMechanisms(w io.Writer) {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true)
	ok := r.NewStyle().Foreground(lipgloss.Color("10"))
	bad := r.NewStyle().Foreground(lipgloss.Color("9"))
	faint := r.NewStyle().Faint(true)

	const row = "%-12s %-26s %s"

	_, _ = fmt.Fprintln(w, header.Render(fmt.Sprintf(row, "MECHANISM", "CAPABILITIES", "STATUS")))
	for _, info := range a.Env.Mechanisms() {
		status := ok.Render("available")
		if !info.Available() {
			status = bad.Render("unavailable") + " " + faint.Render(info.Err.Error())
		}
		_, _ = fmt.Fprintf(w, row+"\n", info.Mech, info.Caps, status)
	}
}
