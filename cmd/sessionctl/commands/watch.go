package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nurksbr/siber-sub001/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWatchCmd creates the watch command
func NewWatchCmd(opts *Options) *cobra.Command {
	var recheck time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print identity changes as they happen",
		Long:  "Print an auth-change event whenever another process logs in or out, or the server drops the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			return watch(ctx, s, cmd, recheck)
		},
	}

	cmd.Flags().DurationVar(&recheck, "recheck", 0, "Also re-check the session on this interval (0 disables)")

	return cmd
}

func watch(ctx context.Context, s *session, cmd *cobra.Command, recheck time.Duration) error {
	var mu sync.Mutex
	enc := json.NewEncoder(cmd.OutOrStdout())
	unsubscribe := s.store.Subscribe(func(change client.AuthChange) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(struct {
			Event string            `json:"event"`
			Data  client.AuthChange `json:"data"`
		}{client.EventName, change}); err != nil {
			s.logger.Warn("failed to print event", zap.Error(err))
		}
	})
	defer unsubscribe()

	w, err := client.WatchStorage(ctx, s.storage.Path(), 0, func() {
		s.store.SyncExternal(ctx)
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to watch session state: %w", err)
	}
	defer w.Close()

	s.store.Init(ctx)

	var tick <-chan time.Time
	if recheck > 0 {
		ticker := time.NewTicker(recheck)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.store.CheckAuth(ctx)
		}
	}
}
