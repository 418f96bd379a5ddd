package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/provision"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/transaction"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what is installed and the last install attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.close()
			return writeStatus(a.stdout, s.orch.Status(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func writeStatus(w io.Writer, st provision.Status, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		writeStatusText(w, st)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func writeStatusText(w io.Writer, st provision.Status) {
	fmt.Fprintf(w, "Data dir:  %s\n", st.DataDir)
	fmt.Fprintf(w, "Platform:  %s\n", st.Platform)
	fmt.Fprintln(w)
	writeAsset(w, "Runtime", st.Runtime)
	writeAsset(w, "n8n", st.Application)
	fmt.Fprintln(w)

	switch {
	case st.Process.Running:
		fmt.Fprintf(w, "Process:   running (pid %d since %s)\n", st.Process.PID, st.Process.Started.Format(time.RFC3339))
	case st.Process.Exited:
		fmt.Fprintf(w, "Process:   exited %s\n", st.Process.ExitErr)
	default:
		fmt.Fprintln(w, "Process:   not started by this command")
	}
}

func writeAsset(w io.Writer, name string, a provision.AssetStatus) {
	symbol := "✗"
	detail := "not installed"
	if a.Installed {
		symbol, detail = "✓", a.Path
	}
	fmt.Fprintf(w, "  %s %-8s %s\n", symbol, name, detail)

	if at := a.LastAttempt; at != nil {
		line := fmt.Sprintf("      last attempt: %s at %s", at.State, at.Started.Format(time.RFC3339))
		if at.State == transaction.StateFailed && at.LastError != "" {
			line += " (" + at.LastError + ")"
		}
		fmt.Fprintln(w, line)
	}
}
