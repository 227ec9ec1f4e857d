// Package doctor runs runtime readiness diagnostics for config, platform
// capture support, artifact storage, and owner-process endpoints.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hollisb/micgrab/internal/backend"
	"github.com/hollisb/micgrab/internal/config"
	"github.com/hollisb/micgrab/internal/health"
	"github.com/hollisb/micgrab/internal/ipc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkSupport())
	checks = append(checks, checkOutputDir(cfg.Config.Capture.OutputDir))

	ownerCheck, ownerAlive := checkOwnerSocket(ctx)
	checks = append(checks, ownerCheck)

	checks = append(checks, checkHealthEndpoint(ctx, cfg.Config.Health.Listen, ownerAlive))

	return Report{Checks: checks}
}

// checkSupport reports platform capture capability.
func checkSupport() Check {
	if backend.Supported() {
		return Check{Name: "capture support", Pass: true, Message: "platform backend available"}
	}
	return Check{Name: "capture support", Pass: false, Message: "no capture backend for this platform"}
}

// checkOutputDir verifies the artifact directory can be created and written.
func checkOutputDir(dir string) Check {
	name := "capture output dir"
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot create %q: %v", dir, err)}
	}

	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot write to %q: %v", dir, err)}
	}
	_ = os.Remove(probe)

	return Check{Name: name, Pass: true, Message: fmt.Sprintf("writable %q", dir)}
}

// checkOwnerSocket reports whether a capture owner is currently serving.
func checkOwnerSocket(ctx context.Context) (Check, bool) {
	name := "runtime socket"

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}, false
	}

	alive, err := ipc.Probe(ctx, socketPath, 200*time.Millisecond)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("probe %q: %v", socketPath, err)}, false
	}
	if alive {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("owner responding on %q", socketPath)}, true
	}
	return Check{Name: name, Pass: true, Message: "no active capture owner"}, false
}

// checkHealthEndpoint probes the gRPC health service of a live owner.
func checkHealthEndpoint(ctx context.Context, listen string, ownerAlive bool) Check {
	name := "health endpoint"

	if strings.TrimSpace(listen) == "" {
		return Check{Name: name, Pass: true, Message: "not configured"}
	}
	if !ownerAlive {
		return Check{Name: name, Pass: true, Message: "no owner running; skipped"}
	}

	serving, err := health.Probe(ctx, listen, time.Second)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("probe %q: %v", listen, err)}
	}
	if !serving {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%q reports capture not serving", listen)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%q serving", listen)}
}
