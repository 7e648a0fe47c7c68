package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/realtime"
	"github.com/VedantVallal/chatapplication-63/internal/room"
	"github.com/spf13/cobra"
)

const quitCommand = "/quit"

// NewOpenCommand creates the open command: an interactive conversation that
// reads lines from stdin and prints messages as they arrive.
func NewOpenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <user-id>",
		Short: "Open an interactive chat with a user",
		Long:  "Open an interactive chat with a user. Each input line is sent; " + quitCommand + " or end of input leaves.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := opts.actingUser()
			if err != nil {
				return err
			}
			d, closer, err := opts.connect(opts.Profile)
			if err != nil {
				return fmt.Errorf("cannot connect to daemon for profile %q: %w", opts.Profile, err)
			}
			defer func() { _ = closer.Close() }()
			return converse(cmd, d, me, args[0])
		},
	}
}

func converse(cmd *cobra.Command, d Daemon, me, other string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	r := room.New(d, me, room.Options{
		OnMessage: func(m chat.Message) {
			if m.SenderID != me {
				_, _ = fmt.Fprintln(out, formatMessage(m))
			}
		},
	})
	defer r.Close()

	c, err := r.Start(ctx, other)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "chat %s with %s\n", c.ID, other)
	for _, m := range r.Messages() {
		_, _ = fmt.Fprintln(out, formatMessage(m))
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case quitCommand:
			return nil
		}
		if _, err := r.Send(ctx, line); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
		}
	}
	return in.Err()
}

// NewFeedCommand creates the feed command, which prints raw change events
// from the daemon's websocket bridge.
func NewFeedCommand(opts *RootOptions) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "feed <channel>",
		Short: "Print realtime events on a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			c := realtime.NewClient(endpoint, nil)
			stop, err := c.Subscribe(ctx, args[0], func(e backend.Event) {
				_, _ = fmt.Fprintf(out, "%s %s %s\n",
					e.Timestamp.Format("15:04:05"), strings.Join(e.Labels, ","), e.Payload)
			})
			if err != nil {
				return err
			}
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "ws://127.0.0.1:8787"+realtime.Path, "realtime bridge URL")
	return cmd
}
