package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stickerboard/internal/service"
)

// NewBackupCommand creates the backup command and its export/import subcommands.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import accounts and boards as JSON",
		Long: `Export or import accounts, credentials and boards as a JSON document.

Import merges into the configured database: documents whose id already
exists are skipped.

Examples:
  stickerboard backup export
  stickerboard backup export --output mybackup.json
  stickerboard backup import --input backup.json`,
	}

	cmd.AddCommand(newBackupExportCommand(rootOpts))
	cmd.AddCommand(newBackupImportCommand(rootOpts))
	return cmd
}

func newBackupExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.Log

			// Generate default filename if not provided
			if output == "" {
				output = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
			}

			// Ensure directory exists
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			st, closeStore, err := openStore(cmd.Context(), rootOpts.Config, log)
			if err != nil {
				return err
			}
			defer closeStore()

			log.Info("exporting database", zap.String("path", output))
			if err := service.NewBackupService(st, log).Export(cmd.Context(), output); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if info, err := os.Stat(output); err == nil {
				log.Info("export complete", zap.String("path", output), zap.Int64("bytes", info.Size()))
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newBackupImportCommand(rootOpts *RootOptions) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON backup into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.Log

			// Check if file exists
			if _, err := os.Stat(input); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("input file does not exist: %s", input)
			}
			if isMemory(rootOpts.Config) {
				return errors.New("import into the in-memory store would be lost on exit")
			}

			st, closeStore, err := openStore(cmd.Context(), rootOpts.Config, log)
			if err != nil {
				return err
			}
			defer closeStore()

			log.Info("importing database", zap.String("path", input))
			stats, err := service.NewBackupService(st, log).Import(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts, %d credentials, %d boards (%d skipped)\n",
				stats.Accounts, stats.Credentials, stats.Boards, stats.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "input file path (required)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
