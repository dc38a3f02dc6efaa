// Package cli implements the command-line surface. Commands talk to the
// core through the driving ports only; wiring happens once in the root
// command's persistent pre-run.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configfile "github.com/ludex-app/ludex/internal/adapters/driven/config/file"
	"github.com/ludex-app/ludex/internal/adapters/driven/notify"
	"github.com/ludex-app/ludex/internal/adapters/driven/remote/couch"
	"github.com/ludex-app/ludex/internal/adapters/driven/storage/sqlite"
	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
	"github.com/ludex-app/ludex/internal/core/ports/driving"
	"github.com/ludex-app/ludex/internal/core/services"
	"github.com/ludex-app/ludex/internal/logger"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// Persistent flags.
var (
	configPath string
	dataDir    string
	verbose    bool
)

// Wired services, populated by initApp.
var (
	appConfig         *domain.Config
	storeRegistry     *services.Registry
	catalogService    driving.Catalog
	syncController    driving.SyncController
	backupService     *services.Backup
	appearanceService *services.Appearance
	eventHub          *notify.Hub
)

var rootCmd = &cobra.Command{
	Use:   "ludex",
	Short: "Game catalog document store with remote replication",
	Long: `ludex manages the local game catalog: path-addressed document
reads and writes, binary attachments, full backup/restore and continuous
bidirectional synchronisation with a CouchDB-compatible remote.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if storeRegistry == nil {
			return nil
		}
		return storeRegistry.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.ludex/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// initApp loads configuration and wires the core. Databases open lazily,
// so commands that never touch one pay nothing.
func initApp(*cobra.Command, []string) error {
	logger.Init(verbose)

	path := configPath
	if path == "" {
		var err error
		path, err = configfile.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := configfile.Load(path)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	appConfig = cfg

	eventHub = notify.NewHub()
	opener := func(name, dir string) (driven.DocumentStore, error) {
		return sqlite.Open(name, dir)
	}
	storeRegistry = services.NewRegistry(opener, cfg.DatabasePaths(), eventHub)

	catalog := services.NewCatalog(storeRegistry, eventHub)
	catalogService = catalog

	replicator := services.NewReplicator(storeRegistry, couch.NewFactory(), eventHub)
	storeRegistry.BindReplicator(replicator)
	syncController = replicator

	backupService = services.NewBackup(storeRegistry, catalog)
	appearanceService = services.NewAppearance(catalog)
	return nil
}

// syncTarget resolves the remote endpoint and credentials from flags and
// the config file, flags winning.
func syncTarget(remote, username, password string, official bool) (string, domain.SyncOptions, error) {
	sc := appConfig.Sync
	if remote == "" {
		remote = sc.Remote
	}
	if username == "" {
		username = sc.Username
	}
	if password == "" {
		password = sc.Password
	}
	if !official {
		official = sc.Official
	}
	if remote == "" {
		return "", domain.SyncOptions{}, fmt.Errorf("no remote configured; pass --remote or set sync.remote in the config file")
	}

	opts := domain.SyncOptions{Official: official}
	if username != "" {
		opts.Auth = &domain.Credentials{Username: username, Password: password}
	}
	return remote, opts, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
