package cli

import (
	"fmt"
	"io"
	"time"

	"stock-sync-service/internal/auth"
	"stock-sync-service/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID      int64
	Permissions []string
	TTL         time.Duration
}

// NewTokenCommand creates a command that signs an API bearer token for operators.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token with JWT_SECRET",
		Long: `Signs a token for the HTTP API. Users are authenticated elsewhere; this is for
operators and smoke tests.

Examples:
  stock-sync-worker token --user 1 --permissions sync.view,sync.resync --ttl 1h`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := auth.NewJWTManager(config.Load().JWTSecret, zap.NewNop())
			return runToken(manager, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "user id placed in the token (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringSliceVar(&opts.Permissions, "permissions", nil, "comma separated permissions")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")

	return cmd
}

func runToken(manager *auth.JWTManager, opts *TokenOptions, w io.Writer) error {
	if opts.UserID < 1 {
		return NewExitError(ExitCommandError, "--user must be a positive id")
	}
	token, err := manager.GenerateToken(opts.UserID, opts.Permissions, opts.TTL)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to sign token", err)
	}

	result := map[string]interface{}{
		"token":       token,
		"user_id":     opts.UserID,
		"permissions": opts.Permissions,
		"expires_in":  opts.TTL.String(),
	}
	return writeResult(w, opts.Format, result, func(w io.Writer) {
		fmt.Fprintln(w, token)
	})
}
