package cli

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag,
// KEYGATE_DATA_DIR env var, or ~/.keygate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("KEYGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.keygate"
}

// openStore opens the key store. The store.driver and store.dsn config keys
// select Postgres for shared deployments; the default is SQLite under the
// data directory.
func openStore() (*store.Store, error) {
	driver := viper.GetString("store.driver")
	if driver != "" && driver != "sqlite" {
		return store.Open(driver, viper.GetString("store.dsn"))
	}
	return store.OpenDir(resolveDataDir())
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
