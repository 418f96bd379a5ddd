package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const healthPollInterval = 500 * time.Millisecond

type launchOptions struct {
	wait        bool
	waitTimeout time.Duration
	detach      bool
}

func newLaunchCmd(a *app) *cobra.Command {
	opts := launchOptions{}
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the n8n server",
		Long: `Start the n8n server with the installed runtime and bundle.

By default launch stays in the foreground and stops n8n on Ctrl-C. With
--detach it returns once n8n is started (and healthy, with --wait) and
leaves the process running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runLaunch(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.wait, "wait", true, "Wait until the health check passes")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait-timeout", 2*time.Minute, "Give up waiting for health after this long")
	cmd.Flags().BoolVar(&opts.detach, "detach", false, "Return after start and leave n8n running")
	return cmd
}

func (a *app) runLaunch(ctx context.Context, opts launchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.newSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.orch.Launch(ctx); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	st := s.orch.Status().Process
	fmt.Fprintf(a.stdout, "✓ n8n started (pid %d) on http://%s:%d\n", st.PID, s.cfg.Server.Host, s.cfg.Server.Port)

	if opts.wait {
		waitCtx, cancel := context.WithTimeout(ctx, opts.waitTimeout)
		msg, err := s.orch.WaitHealthy(waitCtx, healthPollInterval)
		cancel()
		if err != nil {
			s.orch.Shutdown()
			return fmt.Errorf("wait for health: %w", err)
		}
		fmt.Fprintf(a.stdout, "✓ %s\n", msg)
	}

	if opts.detach {
		return nil
	}
	defer func() {
		if err := s.orch.Close(); err != nil {
			s.logger.Warn("stop n8n", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(a.stdout, "Stopping n8n...")
		s.orch.Shutdown()
		return nil
	case <-s.orch.Done():
		st := s.orch.Status().Process
		if st.ExitErr != "" {
			return fmt.Errorf("n8n exited: %s", st.ExitErr)
		}
		fmt.Fprintln(a.stdout, "n8n exited")
		return nil
	}
}
