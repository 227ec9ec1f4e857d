// Package app wires CLI commands to the capture session owner process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/hollisb/micgrab/internal/backend"
	"github.com/hollisb/micgrab/internal/cli"
	"github.com/hollisb/micgrab/internal/config"
	"github.com/hollisb/micgrab/internal/doctor"
	"github.com/hollisb/micgrab/internal/health"
	"github.com/hollisb/micgrab/internal/ipc"
	"github.com/hollisb/micgrab/internal/logging"
	"github.com/hollisb/micgrab/internal/metrics"
	"github.com/hollisb/micgrab/internal/session"
	"github.com/hollisb/micgrab/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("micgrab"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("micgrab"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	if parsed.Command == cli.CommandSupported {
		return r.commandSupported()
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.commandStop(ctx)
	case cli.CommandStart:
		return r.commandStart(ctx, parsed, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// commandSupported answers the capability query without touching any session.
func (r Runner) commandSupported() int {
	if backend.Supported() {
		fmt.Fprintln(r.Stdout, "true")
		return 0
	}
	fmt.Fprintln(r.Stdout, "false")
	return 1
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "status"})
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) commandStop(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "stop"})
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no active capture session")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Result != "" {
		fmt.Fprintln(r.Stdout, resp.Result)
	}
	return 0
}

// commandStart becomes the owner process: it binds the runtime socket, runs
// one capture cycle, serves commands until the cycle finalizes, and prints
// the artifact path.
func (r Runner) commandStart(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	durationSecs := parsed.DurationSecs
	if durationSecs == 0 {
		durationSecs = cfg.Capture.DefaultMaxDurationSecs
	}
	startReq := ipc.Request{Command: "start", MaxDurationSeconds: durationSecs}

	resp, handled, err := tryForward(ctx, socketPath, startReq)
	if handled {
		return r.printForwarded(resp, err)
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, startReq)
			return r.printForwarded(resp, forwardErr)
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	sess := session.New(logger, nil, nil, backend.Options{
		OutputDir:  cfg.Capture.OutputDir,
		SampleRate: cfg.Capture.SampleRate,
		Channels:   cfg.Capture.Channels,
	})
	controller := session.NewController(sess)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	if cfg.Health.Listen != "" {
		healthListener, listenErr := net.Listen("tcp", cfg.Health.Listen)
		if listenErr != nil {
			fmt.Fprintf(r.Stderr, "error: listen health endpoint: %v\n", listenErr)
			serverCancel()
			<-serverErrCh
			return 1
		}
		go func() {
			if serveErr := health.NewServer(sess.Supported()).Serve(serverCtx, healthListener); serveErr != nil {
				logger.Error("health endpoint failed", "error", serveErr.Error())
			}
		}()
	}

	if cfg.Metrics.Listen != "" {
		go func() {
			if serveErr := metrics.Serve(serverCtx, cfg.Metrics.Listen); serveErr != nil {
				logger.Error("metrics endpoint failed", "error", serveErr.Error())
			}
		}()
	}

	maxDuration := time.Duration(durationSecs) * time.Second
	if err := sess.Start(ctx, maxDuration); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("capture start failed", "error", err.Error())
		serverCancel()
		<-serverErrCh
		return 1
	}

	done := sess.Done()
	startedAt := time.Now()

	select {
	case <-ctx.Done():
		if closeErr := sess.Close(); closeErr != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", closeErr)
		}
	case <-done:
	}

	result := sess.LastResult()
	sessionErr := sess.LastError()

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	// Release any capture a forwarded start managed to begin while the
	// server drained; its stream must not outlive this process.
	if closeErr := sess.Close(); closeErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", closeErr)
	}

	logSessionOutcome(logger, result, sessionErr, startedAt)

	if sessionErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", sessionErr)
		return 1
	}
	if result != "" {
		fmt.Fprintln(r.Stdout, result)
	}
	return 0
}

// printForwarded renders a response served by an already-running owner.
func (r Runner) printForwarded(resp ipc.Response, err error) int {
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Result != "" {
		fmt.Fprintln(r.Stdout, resp.Result)
	} else if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func logSessionOutcome(logger *slog.Logger, result string, err error, startedAt time.Time) {
	if logger == nil {
		return
	}
	fields := []any{
		"result", result,
		"started_at", startedAt.Format(time.RFC3339Nano),
		"duration_ms", time.Since(startedAt).Milliseconds(),
	}

	if err != nil {
		logger.Error("capture session failed", append(fields, "error", err.Error())...)
		return
	}
	logger.Info("capture session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsSocketMissing(err) || ipc.IsConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}
