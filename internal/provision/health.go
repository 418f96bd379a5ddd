package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
)

// healthCandidates returns the loopback URLs tried in order.
func healthCandidates(port int) []string {
	return []string{
		fmt.Sprintf("http://localhost:%d/healthz", port),
		fmt.Sprintf("http://127.0.0.1:%d/healthz", port),
		fmt.Sprintf("http://localhost:%d/", port),
		fmt.Sprintf("http://127.0.0.1:%d/", port),
	}
}

// HealthCheck queries n8n and returns "healthy - <status>" for the first
// candidate answering 2xx.
func (o *Orchestrator) HealthCheck(ctx context.Context) (string, error) {
	var lastErr error
	for _, url := range healthCandidates(o.cfg.Server.Port) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := o.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return "healthy - " + resp.Status, nil
		}
		lastErr = fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return "", fault.Network(fmt.Sprintf("n8n is not responding on port %d", o.cfg.Server.Port), lastErr)
}

// WaitHealthy polls HealthCheck every interval until it succeeds, the
// context ends or the launched process exits.
func (o *Orchestrator) WaitHealthy(ctx context.Context, interval time.Duration) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	exited := o.Done()
	for {
		msg, err := o.HealthCheck(ctx)
		if err == nil {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return "", errors.Join(ctx.Err(), err)
		case <-exited:
			st := o.sup.Status()
			return "", fault.Spawn("n8n exited before becoming healthy", errors.New(orDefault(st.ExitErr, "exit status 0")))
		case <-ticker.C:
		}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
