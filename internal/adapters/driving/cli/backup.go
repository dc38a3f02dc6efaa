package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup [file]",
	Short: "Export a full catalog snapshot",
	Long: `Writes every database's documents and attachments into a portable
zip archive.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore [file]",
	Short: "Import a catalog snapshot",
	Long: `Replays a backup archive. Documents merge into the existing data;
nothing is wiped first.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	if backupService == nil {
		return errors.New("backup service not configured")
	}

	if err := backupService.ExportFile(context.Background(), args[0]); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	cmd.Printf("Backup written to %s.\n", args[0])
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	if backupService == nil {
		return errors.New("backup service not configured")
	}

	if err := backupService.ImportFile(context.Background(), args[0]); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	cmd.Printf("Restored from %s.\n", args[0])
	return nil
}
