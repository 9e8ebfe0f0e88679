package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"github.com/pot-code/learnsync/internal/syncclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Profile string // local cache namespace, defaults to User
	DBPath  string
	User    string
	Token   string
	Timeout time.Duration
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of progressctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "progressctl",
		Short: "Offline-first progress sync client",
		Long: `progressctl keeps a local copy of a learner's course progress and syncs it
with the progress service. Completions are stored locally first, so nothing is lost
while the service is unreachable; run "resend" to push what is still pending.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.User == "" {
				return fmt.Errorf("--user is required")
			}
			if opts.Profile == "" {
				opts.Profile = opts.User
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Server, "server", "http://127.0.0.1:8081", "progress service root url")
	flags.StringVar(&opts.Profile, "profile", "", "local profile, defaults to the user name")
	flags.StringVar(&opts.DBPath, "db", "progress.db", "local sqlite database file")
	flags.StringVarP(&opts.User, "user", "u", "", "learner username")
	flags.StringVar(&opts.Token, "token", "", "bearer token sent to the service")
	flags.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per request timeout")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewResendCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// session an opened local cache plus a client bound to it
type session struct {
	client  *syncclient.Client
	storage syncclient.Storage
}

func (s *session) Close() error {
	return s.storage.Close()
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(&logging.Config{Level: level, Env: "development"})
	if err != nil {
		return nil, err
	}

	storage, err := syncclient.OpenSQLiteStorage(ctx, opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	cache, err := syncclient.OpenCache(ctx, storage, opts.Profile)
	if err != nil {
		storage.Close()
		return nil, err
	}
	remote := syncclient.NewHTTPRemote(opts.Server, opts.Token, opts.Timeout)
	client := syncclient.NewClient(remote, cache, &syncclient.ClientOption{
		Logger: logger.With(zap.String("user.name", opts.User)),
	})
	return &session{client, storage}, nil
}

// withSession runs fn against a freshly opened session and closes it afterwards
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
