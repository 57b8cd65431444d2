package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// archiveCmd packs a reservation into a tarball for transfer.
var archiveCmd = &cobra.Command{
	Use:   "archive <reservation-id>",
	Short: "Pack a reservation into a zstd-compressed tarball",
	Long: `Archive packs the named reservation directory into <id>.tar.zst so its
contents can be moved elsewhere before the reservation is swept or purged.
The reservation itself is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithContext(cmd, func(ctx *runContext) error {
			out, _ := cmd.Flags().GetString("out")

			return runArchive(ctx, args[0], out)
		})
	},
}

func init() {
	archiveCmd.Flags().StringP("out", "o", "", "destination directory for the archive (defaults to the configured archive dir)")

	RootCmd.AddCommand(archiveCmd)
}

func runArchive(ctx *runContext, id, out string) error {
	archivePath, err := ctx.alloc.Archive(id, out)
	if err != nil {
		return err
	}

	fmt.Printf("Archived %s to %s\n", id, archivePath)

	return nil
}
