package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stickerboard/internal/devicestate"
	"stickerboard/internal/models"
	"stickerboard/internal/service"
)

// NewWatchCommand creates the watch command, a terminal client that follows
// an owner's active boards and prints celebrations as stickers are added.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		ownerID   string
		stateFile string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow an owner's active boards and print celebrations",
		Long: `Follow an owner's active boards and print a line for every celebration.

The last count seen for each board is kept in --state-file so that restarting
the watcher does not repeat celebrations already shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, rootOpts, ownerID, stateFile)
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "account id whose boards to follow (required)")
	cmd.Flags().StringVar(&stateFile, "state-file", "stickerboard-seen.yaml", "where last-seen counts are kept")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *RootOptions, ownerID, stateFile string) error {
	log := opts.Log

	memory, err := devicestate.OpenFile(stateFile)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, closeStore, err := openStore(ctx, opts.Config, log)
	if err != nil {
		return err
	}
	defer closeStore()

	boards := service.NewBoardService(st, log.Named("boards"), service.WithStoreTimeout(opts.Config.StoreTimeout))
	stream, err := boards.ObserveBoards(ctx, ownerID, models.StateActive)
	if err != nil {
		return fmt.Errorf("failed to observe boards: %w", err)
	}

	out := cmd.OutOrStdout()
	watcher := service.NewCelebrationWatcher(memory, log.Named("celebrations"))
	err = watcher.Run(ctx, stream, func(ev service.CelebrationEvent) {
		b := ev.Board
		switch ev.Kind {
		case service.CelebrationCompleted:
			fmt.Fprintf(out, "%s is complete! (%d/%d)\n", b.Title, b.CurrentCount, b.TotalSlots)
		case service.CelebrationIncremental:
			fmt.Fprintf(out, "%s: %d/%d stickers\n", b.Title, b.CurrentCount, b.TotalSlots)
		}
		log.Debug("celebration", zap.String("board_id", b.ID), zap.Stringer("kind", ev.Kind))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
