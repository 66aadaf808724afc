package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stickerboard/internal/config"
	"stickerboard/internal/logging"
)

// RootOptions holds state shared by every command.
type RootOptions struct {
	Verbose bool

	Config *config.Config
	Log    *zap.Logger
}

// NewRootCommand creates the root command for the stickerboard CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stickerboard",
		Short: "Sticker Board - reward charts for families",
		Long: `Sticker Board tracks reward goals as boards of sticker slots.

Configuration is read from the environment (and a .env file if present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Config = config.Load()

			level := opts.Config.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			log, err := logging.New(logging.Config{
				Level: level,
				Dev:   opts.Config.LogDev,
				File:  opts.Config.LogFile,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			opts.Log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Log != nil {
				_ = opts.Log.Sync()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}
