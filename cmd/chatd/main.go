package main

import (
	"context"
	"fmt"
	"os"

	"github.com/VedantVallal/chatapplication-63/internal/daemon"
	"github.com/VedantVallal/chatapplication-63/internal/profile"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var p daemon.Params
	cmd := &cobra.Command{
		Use:           "chatd",
		Short:         "Serve one chat profile on a local socket",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p.ProfileName = profile.Resolve(p.ProfileName)
			if err := profile.ValidateName(p.ProfileName); err != nil {
				return err
			}
			return serve(cmd.Context(), fx.New(daemon.Module(p)))
		},
	}
	cmd.Flags().StringVar(&p.ProfileName, "profile", "", "profile name (overrides config default)")
	cmd.Flags().StringVar(&p.SocketPath, "socket", "", "listen on this socket instead of the profile default")
	return cmd
}

// serve starts app, blocks until a shutdown signal, then stops it.
func serve(ctx context.Context, app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("shutdown with exit code %d", sig.ExitCode)
	}
	return nil
}
