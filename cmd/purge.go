package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// purgeCmd wipes the artifact root.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove everything under the artifact root",
	Long: `Purge removes every entry under the artifact root, including reservations
that may still be in use and directories this tool did not create. It is the
big hammer for a root nothing else is touching; requires --yes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWithContext(cmd, func(ctx *runContext) error {
			yes, _ := cmd.Flags().GetBool("yes")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			return runPurge(ctx, yes, dryRun)
		})
	},
}

func init() {
	purgeCmd.Flags().Bool("yes", false, "confirm removing everything under the artifact root")
	purgeCmd.Flags().Bool("dry-run", false, "report what would be removed without deleting anything")

	RootCmd.AddCommand(purgeCmd)
}

func runPurge(ctx *runContext, yes, dryRun bool) error {
	if !yes && !dryRun {
		return fmt.Errorf("refusing to purge %s without --yes", ctx.settings.Root)
	}

	result, err := ctx.alloc.Purge(dryRun)
	if err != nil {
		return err
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}

	fmt.Printf("%s %d entries and %d lock markers under %s\n",
		verb, len(result.RemovedEntries), len(result.RemovedMarkers), ctx.settings.Root)

	displayWarnings(ctx.log, result.Warnings)

	return nil
}
