package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/workdir/artifact"
	"github.com/Norgate-AV/workdir/internal/limits"
)

// sweepCmd removes crash leftovers under the artifact root.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove orphaned lock markers and optionally stale reservations",
	Long: `Sweep removes lock markers whose reservation directory is gone, which is
what a crash between directory removal and marker removal leaves behind.
Markers younger than --older-than are kept, so a reservation that is still
being set up is never swept out from under its owner.

With --stale, reservations that have not been modified for the given
duration are removed as well. Directories without a lock marker were not
made by this tool and are never touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWithContext(cmd, func(ctx *runContext) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			stale, _ := cmd.Flags().GetDuration("stale")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			return runSweep(ctx, artifact.SweepOptions{
				MinAge: olderThan,
				Stale:  stale,
				DryRun: dryRun,
			})
		})
	},
}

func init() {
	sweepCmd.Flags().Duration("older-than", limits.DefaultSweepMinAge, "minimum age before an orphaned lock marker is removed")
	sweepCmd.Flags().Duration("stale", 0, "also remove reservations untouched for this long (0 disables)")
	sweepCmd.Flags().Bool("dry-run", false, "report what would be removed without deleting anything")

	RootCmd.AddCommand(sweepCmd)
}

func runSweep(ctx *runContext, opts artifact.SweepOptions) error {
	result, err := ctx.alloc.Sweep(opts)
	if err != nil {
		return err
	}

	verb := "Removed"
	if opts.DryRun {
		verb = "Would remove"
	}

	fmt.Printf("%s %d orphaned marker(s) and %d stale reservation(s) under %s\n",
		verb, len(result.RemovedMarkers), len(result.RemovedEntries), ctx.settings.Root)

	for _, marker := range result.RemovedMarkers {
		fmt.Printf("  marker  %s\n", marker)
	}

	for _, id := range result.RemovedEntries {
		fmt.Printf("  stale   %s\n", id)
	}

	displayWarnings(ctx.log, result.Warnings)

	return nil
}
