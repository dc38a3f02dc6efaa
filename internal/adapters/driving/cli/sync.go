package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Control replication with the remote",
	Long: `Starts, restarts and stops replication sessions against a
CouchDB-compatible remote. The remote endpoint and credentials come from
the config file; flags override them.`,
}

var syncStartCmd = &cobra.Command{
	Use:   "start [db]",
	Short: "Start or restart replication",
	Long: `Starts a replication session for one database, or for every
non-local database when no argument is given. An existing session for the
same database is replaced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSyncStart,
}

var syncFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Rebuild replication from scratch",
	Long: `Discards every replication checkpoint and restarts all sessions,
forcing a complete reconciliation with the remote.`,
	RunE: runSyncFull,
}

var syncStopCmd = &cobra.Command{
	Use:   "stop [db]",
	Short: "Stop replication",
	Long:  `Stops the session for one database, or every session when no argument is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSyncStop,
}

var syncUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show remote storage usage",
	RunE:  runSyncUsage,
}

// Remote override flags, shared by the sync subcommands.
var (
	syncRemote   string
	syncUsername string
	syncPassword string
	syncOfficial bool
)

func init() {
	for _, c := range []*cobra.Command{syncStartCmd, syncFullCmd, syncUsageCmd} {
		c.Flags().StringVar(&syncRemote, "remote", "", "remote base URL")
		c.Flags().StringVar(&syncUsername, "username", "", "remote username")
		c.Flags().StringVar(&syncPassword, "password", "", "remote password")
		c.Flags().BoolVar(&syncOfficial, "official", false, "use the hosted-service database naming")
	}

	syncCmd.AddCommand(syncStartCmd)
	syncCmd.AddCommand(syncFullCmd)
	syncCmd.AddCommand(syncStopCmd)
	syncCmd.AddCommand(syncUsageCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSyncStart(cmd *cobra.Command, args []string) error {
	if syncController == nil {
		return errors.New("sync service not configured")
	}

	remote, opts, err := syncTarget(syncRemote, syncUsername, syncPassword, syncOfficial)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if len(args) == 1 {
		cmd.Printf("Starting sync for %s...\n", args[0])
		if err := syncController.StartSync(ctx, args[0], remote, opts); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
	} else {
		cmd.Println("Starting sync for all databases...")
		if err := syncController.SyncAll(ctx, remote, opts); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
	}

	cmd.Printf("Active sessions: %v\n", syncController.Active())
	cmd.Println("Sessions run while the process lives; use 'ludex listen --sync' for a long-running replica.")
	syncController.StopAll()
	return nil
}

func runSyncFull(cmd *cobra.Command, _ []string) error {
	if syncController == nil {
		return errors.New("sync service not configured")
	}

	remote, opts, err := syncTarget(syncRemote, syncUsername, syncPassword, syncOfficial)
	if err != nil {
		return err
	}

	cmd.Println("Rebuilding replication from scratch...")
	if err := syncController.FullSync(context.Background(), remote, opts); err != nil {
		return fmt.Errorf("full sync failed: %w", err)
	}
	cmd.Println("Full sync complete.")
	syncController.StopAll()
	return nil
}

func runSyncStop(cmd *cobra.Command, args []string) error {
	if syncController == nil {
		return errors.New("sync service not configured")
	}

	if len(args) == 1 {
		syncController.StopSync(args[0])
		cmd.Printf("Stopped sync for %s.\n", args[0])
		return nil
	}
	syncController.StopAll()
	cmd.Println("Stopped all sync sessions.")
	return nil
}

func runSyncUsage(cmd *cobra.Command, _ []string) error {
	if syncController == nil {
		return errors.New("sync service not configured")
	}

	remote, opts, err := syncTarget(syncRemote, syncUsername, syncPassword, syncOfficial)
	if err != nil {
		return err
	}

	size, err := syncController.RemoteUsage(context.Background(), remote, opts)
	if err != nil {
		return fmt.Errorf("failed to read remote usage: %w", err)
	}
	cmd.Printf("Remote usage: %d bytes (%.2f MiB)\n", size, float64(size)/(1024*1024))
	return nil
}
