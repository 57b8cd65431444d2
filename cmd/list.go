package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/workdir/artifact"
)

// listCmd prints every reservation under the artifact root.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List reservations under the artifact root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWithContext(cmd, func(ctx *runContext) error {
			includeSizes, _ := cmd.Flags().GetBool("sizes")

			return runList(ctx, includeSizes)
		})
	},
}

func init() {
	listCmd.Flags().Bool("sizes", false, "compute the total size of each reservation (walks every tree)")

	RootCmd.AddCommand(listCmd)
}

func runList(ctx *runContext, includeSizes bool) error {
	reservations, err := ctx.alloc.List(includeSizes)
	if err != nil {
		return err
	}

	if len(reservations) == 0 {
		fmt.Printf("No reservations under %s\n", ctx.settings.Root)
		return nil
	}

	fmt.Printf("Reservations under %s:\n\n", ctx.settings.Root)
	fmt.Printf("%-38s %-10s %-20s %-10s %s\n", "ID", "STATE", "MODIFIED", "SIZE", "ARTIFACTS")

	for _, res := range reservations {
		fmt.Printf("%-38s %s %-20s %-10s %s\n",
			res.ID,
			colorizeState(res.State),
			formatModTime(res),
			formatSize(res.Size),
			strings.Join(res.Artifacts, ","),
		)
	}

	return nil
}

// colorizeState pads the state to column width before coloring so the escape
// codes do not break the alignment.
func colorizeState(state artifact.ReservationState) string {
	padded := fmt.Sprintf("%-10s", string(state))

	switch state {
	case artifact.StateActive:
		return color.New(color.FgGreen).Sprint(padded)
	case artifact.StateOrphaned:
		return color.New(color.FgYellow).Sprint(padded)
	default:
		return padded
	}
}

// formatModTime renders a reservation's modification time for display
func formatModTime(res artifact.Reservation) string {
	if res.ModTime.IsZero() {
		return "-"
	}

	return res.ModTime.Format("2006-01-02 15:04:05")
}

// formatSize renders a byte count for display; -1 means sizes were not
// computed.
func formatSize(n int64) string {
	if n < 0 {
		return "-"
	}

	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0

	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
