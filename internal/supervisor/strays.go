package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/process"
)

// KillStrays kills every process whose executable name is name, other
// than the current process. Processes that vanish or cannot be inspected
// are ignored.
func KillStrays(ctx context.Context, name string, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	self := int32(os.Getpid())
	var errs []error
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil || pname != name {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kill %d: %w", p.Pid, err))
			continue
		}
		logger.Info("killed stray process", "pid", p.Pid, "name", name)
	}
	return errors.Join(errs...)
}
