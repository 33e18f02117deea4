package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/bizstore/internal/persist"
)

var (
	backupForce      bool
	backupExportPath string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage snapshots of the local data",
	Long: `Create, inspect and restore snapshots of everything bizstore keeps
locally: the application state, the local tables and the offline caches.

Examples:
  bizstore backup create              Snapshot the local data
  bizstore backup list                List snapshots, newest first
  bizstore backup restore <id>        Replace local data with a snapshot
  bizstore backup export <id>         Write a snapshot to a JSON file
  bizstore backup import <file>       Register an exported file as a snapshot
  bizstore backup delete <id>         Remove a snapshot
  bizstore backup reindex             Rebuild the snapshot list`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the local data",
	Args:  cobra.NoArgs,
	Run:   runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	Run:   runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Replace local data with a snapshot",
	Long: `Replace every local slot with the snapshot's contents. Slots created
after the snapshot are removed. Unless disabled in the config, a safety
snapshot of the current data is taken first.`,
	Args: cobra.ExactArgs(1),
	Run:  runBackupRestore,
}

var backupExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write a snapshot to a JSON file",
	Args:  cobra.ExactArgs(1),
	Run:   runBackupExport,
}

var backupImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Register an exported file as a new snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   runBackupImport,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   runBackupDelete,
}

var backupReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the snapshot list from stored snapshots",
	Args:  cobra.NoArgs,
	Run:   runBackupReindex,
}

func init() {
	backupRestoreCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Skip confirmation prompt")
	backupExportCmd.Flags().StringVarP(&backupExportPath, "output", "o", "", "Output file (default: exports directory)")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupReindexCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	id, err := c.App.Persist.CreateBackup()
	if err != nil {
		exitError("%v", err)
	}
	color.New(color.FgGreen).Printf("Created backup %s\n", id)
}

func runBackupList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ids := c.App.Persist.ListBackups()
	if len(ids) == 0 {
		fmt.Println("No backups")
		return
	}

	cyan := color.New(color.FgCyan)
	for _, id := range ids {
		snap, ok := c.App.Persist.GetBackup(id)
		cyan.Printf("%s", id)
		if !ok {
			color.New(color.FgRed).Printf(" (missing)\n")
			continue
		}
		fmt.Printf("  %s  %d slot(s)\n", snap.CreatedAt.Local().Format(time.DateTime), len(snap.Payload))
	}
}

func runBackupRestore(cmd *cobra.Command, args []string) {
	id := args[0]

	// Confirm unless --force
	if !backupForce {
		fmt.Printf("Restoring %s replaces all local data. Continue? [y/N] ", id)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	c := initContext()
	defer c.Close()

	restored, err := c.App.RestoreBackup(id)
	if err != nil {
		exitError("%v", err)
	}
	if !restored {
		exitError("backup %s not found", id)
	}
	color.New(color.FgGreen).Printf("Restored backup %s\n", id)
}

func runBackupExport(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	snap, ok := c.App.Persist.GetBackup(args[0])
	if !ok {
		exitError("backup %s not found", args[0])
	}

	path := backupExportPath
	if path == "" {
		path = filepath.Join(c.Config.ExportsPath(), persist.ExportFileName(snap.CreatedAt))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		exitError("%v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		exitError("failed to create export file: %v", err)
	}
	defer f.Close()

	if err := c.App.Persist.Export(args[0], f); err != nil {
		exitError("%v", err)
	}
	color.New(color.FgGreen).Printf("Exported backup %s to %s\n", args[0], path)
}

func runBackupImport(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		exitError("%v", err)
	}
	defer f.Close()

	c := initContext()
	defer c.Close()

	id, err := c.App.Persist.Import(f)
	if err != nil {
		exitError("%v", err)
	}
	color.New(color.FgGreen).Printf("Imported %s as backup %s\n", filepath.Base(args[0]), id)
	fmt.Printf("Run 'bizstore backup restore %s' to apply it.\n", id)
}

func runBackupDelete(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.App.Persist.DeleteBackup(args[0]); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Deleted backup %s\n", args[0])
}

func runBackupReindex(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ids, err := c.App.Persist.Reindex()
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Indexed %d backup(s)\n", len(ids))
}
