package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/download"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/provision"
	"github.com/spf13/cobra"
)

func newSetupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install the Node.js runtime and the n8n bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSetup(cmd.Context(), true, true)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "runtime",
			Short: "Install the Node.js runtime",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runSetup(cmd.Context(), true, false)
			},
		},
		&cobra.Command{
			Use:     "app",
			Aliases: []string{"application", "n8n"},
			Short:   "Install or refresh the n8n-core bundle",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runSetup(cmd.Context(), false, true)
			},
		},
		&cobra.Command{
			Use:   "all",
			Short: "Install both (same as setup with no subcommand)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runSetup(cmd.Context(), true, true)
			},
		},
	)
	return cmd
}

func (a *app) runSetup(ctx context.Context, runtime, application bool) error {
	s, err := a.newSession(ctx, newProgressPrinter(a.stdout))
	if err != nil {
		return err
	}
	defer s.close()

	if runtime {
		if err := s.orch.SetupRuntime(ctx); err != nil {
			return fmt.Errorf("setup %s: %w", provision.RuntimeAsset, err)
		}
		fmt.Fprintln(a.stdout, "✓ Node.js runtime ready")
	}
	if application {
		if err := s.orch.SetupApplication(ctx); err != nil {
			return fmt.Errorf("setup %s: %w", provision.BundleAsset, err)
		}
		fmt.Fprintln(a.stdout, "✓ n8n bundle ready")
	}
	return nil
}

// progressPrinter writes a line per asset every ten percent, plus the
// final 100% and extraction notices.
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last map[string]int
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, last: map[string]int{}}
}

func (p *progressPrinter) Progress(ev download.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := int(ev.Percent) / 10
	prev, seen := p.last[ev.Label]
	if seen && step <= prev {
		return
	}
	p.last[ev.Label] = step
	fmt.Fprintf(p.out, "  %s: %5.1f%% (%s / %s)\n", ev.Label, ev.Percent, formatBytes(ev.BytesDownloaded), formatBytes(ev.TotalBytes))
}

func (p *progressPrinter) ExtractionStarted(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "  %s: extracting...\n", label)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
