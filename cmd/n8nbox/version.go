package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/config"
	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "n8nbox %s\n", Version)
			fmt.Fprintf(a.stdout, "Node.js runtime: %s\n", config.DefaultNodeVersion)
			fmt.Fprintf(a.stdout, "Built with %s for %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			if rev := vcsRevision(); rev != "" {
				fmt.Fprintf(a.stdout, " (%s)", rev)
			}
			fmt.Fprintln(a.stdout)
		},
	}
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}
