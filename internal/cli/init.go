package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/bizstore/internal/config"
	"github.com/kilupskalvis/bizstore/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new bizstore workspace",
	Long: `Initialize a new bizstore workspace in the current directory.
This creates a .bizstore directory holding the config, the local
database and exported backups.

Examples:
  bizstore init
  bizstore init --backend sqlite
  bizstore init --remote postgrest --url https://project.supabase.co
  bizstore init --remote postgres --dsn postgres://localhost/biz`,
	Run: runInit,
}

var (
	initBackend    string
	initRemote     string
	initURL        string
	initDSN        string
	initIDPrefix   string
	initMaxRetries int
)

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", storage.BackendBolt, "Local storage backend (bolt, sqlite, memory)")
	initCmd.Flags().StringVar(&initRemote, "remote", config.RemoteNone, "Remote kind (postgrest, postgres, none)")
	initCmd.Flags().StringVar(&initURL, "url", "", "PostgREST base URL")
	initCmd.Flags().StringVar(&initDSN, "dsn", "", "PostgreSQL connection string")
	initCmd.Flags().StringVar(&initIDPrefix, "id-prefix", "local_", "Prefix of ids generated by the local store")
	initCmd.Flags().IntVar(&initMaxRetries, "max-retries", 0, "Retries for transient remote errors")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	// Check if already initialized
	if _, err := config.FindRoot(cwd); err == nil {
		exitError("bizstore workspace already exists")
	}

	cfg := config.Default()
	cfg.Storage.Backend = initBackend
	cfg.Remote.Kind = initRemote
	cfg.Remote.URL = initURL
	cfg.Remote.DSN = initDSN
	cfg.Remote.MaxRetries = initMaxRetries
	cfg.Local.IDPrefix = initIDPrefix

	cfg, err = config.Initialize(cwd, cfg)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	// Create the local database so later commands find it
	medium, err := storage.Open(cfg.Storage.Backend, cfg.StoragePath(), int(cfg.Storage.QuotaBytes))
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	medium.Close()

	green := color.New(color.FgGreen)
	green.Printf("Initialized empty bizstore workspace in %s/\n", config.Dir)
	fmt.Printf("Local storage: %s (%s)\n", cfg.Storage.Backend, cfg.StoragePath())
	if cfg.Remote.Kind == config.RemoteNone {
		fmt.Printf("No remote configured; every operation is served locally.\n")
		return
	}
	fmt.Printf("Remote: %s\n", cfg.Remote.Kind)
}
