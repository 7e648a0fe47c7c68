// Package cli implements chatctl, the command-line front end of chatd.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/api"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/client"
	"github.com/VedantVallal/chatapplication-63/internal/profile"
	"github.com/VedantVallal/chatapplication-63/internal/room"
	"github.com/spf13/cobra"
)

// Daemon is the surface of a running chatd used by the commands.
type Daemon interface {
	room.Backend
	GetUserByID(ctx context.Context, userID string) (*chat.User, error)
	RegisterUser(ctx context.Context, nu chat.NewUser) (*chat.User, error)
	Status(ctx context.Context) (*api.StatusResponse, error)
	Refresh(ctx context.Context) (*api.StatusResponse, error)
}

// Connector opens a Daemon for a profile.
type Connector func(profileName string) (Daemon, io.Closer, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Profile string
	User    string
	Format  string // "json" | "text"
	Timeout time.Duration

	connect Connector
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the chatctl root command talking to the profile's
// daemon socket.
func NewRootCommand() *cobra.Command {
	return newRootCommand(dialDaemon)
}

func dialDaemon(profileName string) (Daemon, io.Closer, error) {
	c, err := client.Dial(profile.SocketPath(profileName), nil)
	if err != nil {
		return nil, nil, err
	}
	return c, c, nil
}

func newRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:   "chatctl",
		Short: "Talk to a running chatd",
		Long:  "chatctl lists users and chats, reads history, sends messages and follows live conversations through the chatd of a profile.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.Profile = profile.Resolve(opts.Profile)
			return profile.ValidateName(opts.Profile)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "profile name (overrides config default)")
	cmd.PersistentFlags().StringVar(&opts.User, "as", "", "acting user ID")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-request timeout")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewUsersCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewChatsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewOpenCommand(opts))
	cmd.AddCommand(NewFeedCommand(opts))

	return cmd
}

// withDaemon connects, runs fn under the request timeout and disconnects.
func (o *RootOptions) withDaemon(cmd *cobra.Command, fn func(ctx context.Context, d Daemon) error) error {
	d, closer, err := o.connect(o.Profile)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", o.Profile, err)
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()
	return fn(ctx, d)
}

// actingUser returns --as or fails.
func (o *RootOptions) actingUser() (string, error) {
	if o.User == "" {
		return "", fmt.Errorf("--as <user-id> is required")
	}
	return o.User, nil
}

func (o *RootOptions) output(cmd *cobra.Command) *output {
	return &output{json: o.Format == "json", w: cmd.OutOrStdout()}
}
