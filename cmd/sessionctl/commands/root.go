// Package commands holds the sessionctl subcommands
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nurksbr/siber-sub001/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options are the flags shared by every subcommand
type Options struct {
	Server    string
	StatePath string
	Timeout   time.Duration
	Verbose   bool
}

// NewRootCmd creates the sessionctl root command with every subcommand
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Session client for the auth server",
		Long:          "Log in, log out and watch the session state shared by every sessionctl process on this machine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.Server, "server", envOr("SESSIONCTL_SERVER", "http://localhost:8080"), "Auth server base URL")
	flags.StringVar(&opts.StatePath, "state", envOr("SESSIONCTL_STATE", defaultStatePath()), "Session state database")
	flags.DurationVar(&opts.Timeout, "timeout", client.DefaultSessionTimeout, "Session check timeout")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(NewLoginCmd(opts))
	rootCmd.AddCommand(NewLogoutCmd(opts))
	rootCmd.AddCommand(NewStatusCmd(opts))
	rootCmd.AddCommand(NewRegisterCmd(opts))
	rootCmd.AddCommand(NewWatchCmd(opts))

	return rootCmd
}

// session is everything a subcommand needs to talk to the server
type session struct {
	storage *client.SQLiteStorage
	api     *client.API
	store   *client.Store
	logger  *zap.Logger
}

func (o *Options) open() (*session, error) {
	logger := zap.NewNop()
	if o.Verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}

	storage, err := client.NewSQLiteStorage(o.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session state: %w", err)
	}

	jar, err := client.NewJar(o.Server, storage, logger)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	api := client.NewAPI(o.Server, jar, client.WithSessionTimeout(o.Timeout))
	store := client.NewStore(client.Options{
		API:     api,
		Storage: storage,
		Logger:  logger,
	})

	return &session{storage: storage, api: api, store: store, logger: logger}, nil
}

func (s *session) Close() {
	_ = s.store.Close()
	if err := s.storage.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close session state: %v\n", err)
	}
	_ = s.logger.Sync()
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sessionctl", "session.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
