package domain

import (
	"path/filepath"
	"sort"
	"strings"
)

// The logical databases of the catalog. Names containing "local" are never
// replicated; this is a naming convention, not per-database configuration.
const (
	DBGame           = "game"
	DBGameCollection = "game-collection"
	DBGameLocal      = "game-local"
	DBConfig         = "config"
	DBConfigLocal    = "config-local"
)

// localMarker flags databases excluded from every sync operation.
const localMarker = "local"

// IsLocalDatabase reports whether a database is excluded from replication.
func IsLocalDatabase(name string) bool {
	return strings.Contains(name, localMarker)
}

// SyncConfig holds the replication settings from the config file.
type SyncConfig struct {
	// Remote is the base URL of the CouchDB-compatible peer.
	Remote string `toml:"remote"`

	// Official selects the hosted-service database naming scheme.
	Official bool `toml:"official"`

	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Config is the process-wide static configuration.
type Config struct {
	// DataDir is the root under which each database gets its own
	// directory.
	DataDir string `toml:"data_dir"`

	// Databases optionally overrides the on-disk path per database
	// name. Unlisted databases default to DataDir/<name>.
	Databases map[string]string `toml:"databases"`

	Sync SyncConfig `toml:"sync"`
}

// DatabasePaths resolves the full configuration table: the five standard
// databases plus any overrides.
func (c *Config) DatabasePaths() map[string]string {
	paths := make(map[string]string)
	for _, name := range []string{DBGame, DBGameCollection, DBGameLocal, DBConfig, DBConfigLocal} {
		paths[name] = filepath.Join(c.DataDir, name)
	}
	for name, p := range c.Databases {
		paths[name] = p
	}
	return paths
}

// DatabaseNames returns the configured names in stable order.
func (c *Config) DatabaseNames() []string {
	paths := c.DatabasePaths()
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Credentials is the opaque auth pair passed through to the remote.
type Credentials struct {
	Username string
	Password string
}

// SyncOptions parameterise one replication start.
type SyncOptions struct {
	// Auth, when set, is used for remote provisioning and transport
	// authentication.
	Auth *Credentials

	// Official selects the hosted naming scheme for remote databases.
	Official bool
}

// vendorPrefix names self-hosted remote databases.
const vendorPrefix = "ludex"

// RemoteDatabaseName derives the remote database name for a local one.
// Official mode prefixes the username and rewrites the "user" account
// prefix to the hosted service's "userdb" namespace; self-hosted remotes
// use a fixed vendor prefix.
func RemoteDatabaseName(dbName string, opts SyncOptions) string {
	if opts.Official && opts.Auth != nil {
		return strings.Replace(opts.Auth.Username+"-"+dbName, "user", "userdb", 1)
	}
	return vendorPrefix + "-" + dbName
}
