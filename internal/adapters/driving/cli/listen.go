package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream change and sync events",
	Long: `Prints document, attachment and sync-status events as JSON lines
until interrupted. With --sync, replication sessions run for the lifetime
of the command, making this the long-running replica mode.`,
	RunE: runListen,
}

// listenSync is the --sync flag of listen.
var listenSync bool

func init() {
	listenCmd.Flags().BoolVar(&listenSync, "sync", false, "also run replication while listening")
	listenCmd.Flags().StringVar(&syncRemote, "remote", "", "remote base URL")
	listenCmd.Flags().StringVar(&syncUsername, "username", "", "remote username")
	listenCmd.Flags().StringVar(&syncPassword, "password", "", "remote password")
	listenCmd.Flags().BoolVar(&syncOfficial, "official", false, "use the hosted-service database naming")

	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, _ []string) error {
	if eventHub == nil {
		return errors.New("event hub not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, cancel := eventHub.Subscribe()
	defer cancel()

	// Open every configured database so their change feeds are live.
	for _, name := range appConfig.DatabaseNames() {
		if _, err := storeRegistry.Store(name); err != nil {
			return err
		}
	}

	if listenSync {
		if syncController == nil {
			return errors.New("sync service not configured")
		}
		remote, opts, err := syncTarget(syncRemote, syncUsername, syncPassword, syncOfficial)
		if err != nil {
			return err
		}
		if err := syncController.SyncAll(ctx, remote, opts); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		defer syncController.StopAll()
	}

	cmd.Println("Listening for events (ctrl-c to stop)...")
	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			var payload any
			switch {
			case ev.Doc != nil:
				payload = map[string]any{"event": "doc-changed", "data": ev.Doc}
			case ev.Attachment != nil:
				payload = map[string]any{"event": "attachment-changed", "data": ev.Attachment}
			case ev.Sync != nil:
				payload = map[string]any{"event": "sync-status", "data": ev.Sync}
			default:
				continue
			}
			if err := enc.Encode(payload); err != nil {
				return err
			}
		}
	}
}
