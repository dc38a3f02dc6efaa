package domain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocalDatabase(t *testing.T) {
	assert.True(t, IsLocalDatabase(DBGameLocal))
	assert.True(t, IsLocalDatabase(DBConfigLocal))
	assert.False(t, IsLocalDatabase(DBGame))
	assert.False(t, IsLocalDatabase(DBGameCollection))
	assert.False(t, IsLocalDatabase(DBConfig))
}

func TestConfig_DatabasePaths_Defaults(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	paths := cfg.DatabasePaths()

	assert.Len(t, paths, 5)
	assert.Equal(t, filepath.Join("/data", "game"), paths[DBGame])
	assert.Equal(t, filepath.Join("/data", "config-local"), paths[DBConfigLocal])
}

func TestConfig_DatabasePaths_Overrides(t *testing.T) {
	cfg := &Config{
		DataDir:   "/data",
		Databases: map[string]string{DBGame: "/elsewhere/game", "extra": "/extra"},
	}
	paths := cfg.DatabasePaths()

	assert.Equal(t, "/elsewhere/game", paths[DBGame])
	assert.Equal(t, "/extra", paths["extra"])
	assert.Equal(t, filepath.Join("/data", "config"), paths[DBConfig])
}

func TestConfig_DatabaseNames_Sorted(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	assert.Equal(t, []string{"config", "config-local", "game", "game-collection", "game-local"}, cfg.DatabaseNames())
}

func TestRemoteDatabaseName_SelfHosted(t *testing.T) {
	assert.Equal(t, "ludex-game", RemoteDatabaseName("game", SyncOptions{}))
	assert.Equal(t, "ludex-config", RemoteDatabaseName("config", SyncOptions{
		Auth: &Credentials{Username: "alice"},
	}))
}

func TestRemoteDatabaseName_Official(t *testing.T) {
	opts := SyncOptions{Official: true, Auth: &Credentials{Username: "user123"}}
	assert.Equal(t, "userdb123-game", RemoteDatabaseName("game", opts))

	// Only the first occurrence is rewritten.
	opts.Auth.Username = "alice"
	assert.Equal(t, "alice-game", RemoteDatabaseName("game", opts))
}
