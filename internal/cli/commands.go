package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pot-code/learnsync/internal/infrastructure/auth"
	"github.com/pot-code/learnsync/internal/syncclient"
	"github.com/pot-code/learnsync/internal/user"
	"github.com/spf13/cobra"
)

// NewPullCommand creates the pull command.
func NewPullCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [course-id]",
		Short: "Fetch server progress and merge it into the local cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID := ""
			if len(args) == 1 {
				courseID = args[0]
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				records, err := s.client.PullAndReconcile(ctx, opts.User, courseID)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), opts.Format, records)
			})
		},
	}
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <course-id> <item-id>...",
		Short: "Mark items completed and push the course",
		Long: `Mark items completed and push the course.

The items are stored locally before anything is sent. When the push fails they stay
pending and the command exits non-zero; run "resend" later.

Example:
  progressctl -u alice complete 1 1-1 1-2`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				record, err := s.client.PushSync(ctx, opts.User, args[0], args[1:]...)
				if perr := printRecord(cmd.OutOrStdout(), opts.Format, record); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <course-id>",
		Short: "Delete the progress of a course locally and on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				err := s.client.RequestReset(ctx, opts.User, args[0])
				var warning *syncclient.ResetWarning
				if errors.As(err, &warning) {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", warning)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "course %s reset\n", args[0])
				return nil
			})
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the local cache without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return printRecords(cmd.OutOrStdout(), opts.Format, s.client.Cache.Snapshot())
			})
		},
	}
}

// NewResendCommand creates the resend command.
func NewResendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resend",
		Short: "Push every course that still has pending items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				err := s.client.Resend(ctx, opts.User)
				if perr := printRecords(cmd.OutOrStdout(), opts.Format, s.client.Cache.Snapshot()); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Secret string
	Method string
	TTL    time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --user, signed with the service secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Secret == "" {
				return fmt.Errorf("--secret is required")
			}
			ju := auth.NewJWTUtil(opts.Method, opts.Secret, "", opts.TTL)
			tokenStr, err := ju.GenerateTokenStr(&user.UserModel{Username: opts.User})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokenStr)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "JWT secret shared with the service")
	cmd.Flags().StringVar(&opts.Method, "method", "HS256", "signing algorithm (HS256|HS384|HS512)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
