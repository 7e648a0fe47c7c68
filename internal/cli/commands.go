package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/VedantVallal/chatapplication-63/internal/api"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"permissions"},
		Short:   "Show daemon state and backend permissions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withDaemon(cmd, func(ctx context.Context, d Daemon) error {
				get := d.Status
				if refresh {
					get = d.Refresh
				}
				st, err := get(ctx)
				if err != nil {
					return err
				}
				return opts.output(cmd).emit(st, func(w io.Writer) { printStatus(w, st) })
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-probe the backend before reporting")
	return cmd
}

func printStatus(w io.Writer, st *api.StatusResponse) {
	p := st.Permissions
	row(w, "Profile:", st.Profile)
	row(w, "State:", st.State)
	row(w, "Uptime:", fmt.Sprintf("%dms", st.UptimeMs))
	row(w, "Users:", yesNo(p.UsersAccessible))
	row(w, "Chats:", yesNo(p.ChatsAccessible))
	row(w, "Messages:", yesNo(p.MessagesAccessible))
	if c := p.Connection; c != nil {
		switch {
		case c.Identity != nil:
			row(w, "Signed in:", c.Identity.ID)
		case c.Connected:
			row(w, "Signed in:", "no")
		default:
			row(w, "Backend:", "unreachable")
		}
	}
	for _, e := range p.Errors {
		row(w, "Error:", e)
	}
}

func yesNo(ok bool) string {
	if ok {
		return "accessible"
	}
	return "NOT accessible"
}

// NewUsersCommand creates the users command.
func NewUsersCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users other than the acting user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			me, err := opts.actingUser()
			if err != nil {
				return err
			}
			return opts.withDaemon(cmd, func(ctx context.Context, d Daemon) error {
				users, err := d.GetAllUsers(ctx, me)
				if err != nil {
					return err
				}
				return opts.output(cmd).emit(users, func(w io.Writer) {
					row(w, "ID", "USERNAME", "EMAIL", "NUMBER")
					for _, u := range users {
						row(w, u.ID, u.Username, u.Email, u.Number)
					}
				})
			})
		},
	}
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(opts *RootOptions) *cobra.Command {
	var number string
	cmd := &cobra.Command{
		Use:   "register <user-id> <username> <email>",
		Short: "Create a user directory record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDaemon(cmd, func(ctx context.Context, d Daemon) error {
				u, err := d.RegisterUser(ctx, chat.NewUser{
					ID:       args[0],
					Username: args[1],
					Email:    args[2],
					Number:   number,
				})
				if err != nil {
					return err
				}
				return opts.output(cmd).emit(u, func(w io.Writer) {
					row(w, "Registered", u.ID, u.Username)
				})
			})
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "phone number")
	return cmd
}

// NewChatsCommand creates the chats command.
func NewChatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List the acting user's chats, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			me, err := opts.actingUser()
			if err != nil {
				return err
			}
			return opts.withDaemon(cmd, func(ctx context.Context, d Daemon) error {
				chats, err := d.GetUserChats(ctx, me)
				if err != nil {
					return err
				}
				return opts.output(cmd).emit(chats, func(w io.Writer) {
					row(w, "CHAT", "WITH", "LAST UPDATED", "LAST MESSAGE")
					for _, c := range chats {
						row(w, c.ID, c.Other(me), c.LastUpdated, c.LastMessage)
					}
				})
			})
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <chat-id>",
		Short: "Print a chat's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDaemon(cmd, func(ctx context.Context, d Daemon) error {
				msgs, err := d.GetChatMessages(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return opts.output(cmd).emit(msgs, func(w io.Writer) {
					for _, m := range msgs {
						_, _ = fmt.Fprintln(w, formatMessage(m))
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum messages (0 = daemon default)")
	return cmd
}

// NewSendCommand creates the send command.
func NewSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <user-id> <text>...",
		Short: "Send a message to a user, opening the chat if needed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := opts.actingUser()
			if err != nil {
				return err
			}
			return opts.withDaemon(cmd, func(ctx context.Context, d Daemon) error {
				c, err := d.GetOrCreateChat(ctx, me, args[0])
				if err != nil {
					return err
				}
				m, err := d.SendMessage(ctx, chat.Outgoing{
					ChatID:   c.ID,
					SenderID: me,
					Body:     strings.Join(args[1:], " "),
				})
				if err != nil {
					return err
				}
				return opts.output(cmd).emit(m, func(w io.Writer) {
					row(w, "Sent", m.ID, "to chat", m.ChatID)
				})
			})
		},
	}
}

func formatMessage(m chat.Message) string {
	ts := m.Timestamp
	if len(ts) >= 16 {
		ts = ts[:16]
	}
	return fmt.Sprintf("[%s] %s: %s", strings.Replace(ts, "T", " ", 1), m.SenderID, m.Body)
}
