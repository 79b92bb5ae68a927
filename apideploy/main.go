// Command apideploy deploys the HTTP APIs, functions and IAM entities of a
// project tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/animus-labs/apideploy/internal/config"
	"github.com/animus-labs/apideploy/internal/platform/env"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries the process exit code of a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func configError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitConfig, err: err}
}

func exitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitFailure
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	g := scanGlobal(args)
	logger, err := newLogger(stderr, g.logFormat, g.logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}

	cfg, err := config.Load(g.projectDir)
	if err != nil {
		logger.Error("invalid project config", "error", err)
		return exitConfig
	}
	a, err := newApp(ctx, cfg, logger, stdout)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitCode(err)
	}
	defer a.Close()

	root, err := a.rootCommand(ctx)
	if err != nil {
		logger.Error("build commands", "error", err)
		return exitFailure
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		code := exitCode(err)
		if code == exitConfig {
			logger.Error("invalid configuration", "error", err)
		} else {
			logger.Error("command failed", "error", err)
		}
		return code
	}
	return exitOK
}

// globalFlags are needed before the command tree exists: the project
// configuration selects the plugins, and plugins add flags to commands.
type globalFlags struct {
	projectDir string
	logLevel   string
	logFormat  string
}

func scanGlobal(args []string) globalFlags {
	g := globalFlags{
		projectDir: env.Override(env.Key("PROJECT_DIR"), "."),
		logLevel:   env.Override(env.Key("LOG_LEVEL"), "info"),
		logFormat:  env.Override(env.Key("LOG_FORMAT"), "text"),
	}
	targets := map[string]*string{
		"--project-dir": &g.projectDir,
		"-C":            &g.projectDir,
		"--log-level":   &g.logLevel,
		"--log-format":  &g.logFormat,
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(arg, "=")
		target, ok := targets[name]
		if !ok {
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				break
			}
			i++
			value = args[i]
		}
		*target = value
	}
	return g
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
