// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/dbkinghorn/nodepyenv/internal/config"
	"github.com/dbkinghorn/nodepyenv/internal/mambaroot"
	"github.com/dbkinghorn/nodepyenv/pkg/envbuilder"
	nperrors "github.com/dbkinghorn/nodepyenv/pkg/errors"
	"github.com/dbkinghorn/nodepyenv/pkg/logging"
	"github.com/dbkinghorn/nodepyenv/pkg/platform"
	"github.com/dbkinghorn/nodepyenv/pkg/provision"
)

const version = "0.1.0"

const (
	defaultEnvFile = "environment.yaml"
	defaultRoot    = "./"
)

// runtimeEnv is what the command needs from the process.
type runtimeEnv struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func newRootCmd(env runtimeEnv) *cobra.Command {
	var (
		envFile     string
		root        string
		versionFlag bool
	)

	cmd := &cobra.Command{
		Use:   "nodepyenv",
		Short: "Create a conda environment with a self-provisioned micromamba",
		Long: `nodepyenv downloads micromamba into the mamba root when it is missing and
creates the conda environment described by an environment.yaml file.

Settings are read from $NODEPYENV_CONFIG or <mamba_root>/nodepyenv.toml and
NODEPYENV_* environment variables.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return fmt.Errorf("%w: %w", nperrors.ErrInvalidConfig, err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionFlag {
				fmt.Fprintf(env.stdout, "nodepyenv version %s\n", version)
				return nil
			}
			return run(cmd.Context(), env, filepath.Clean(root), envFile)
		},
	}

	cmd.SetOut(env.stdout)
	cmd.SetErr(env.stderr)
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", nperrors.ErrInvalidConfig, err)
	})

	cmd.Flags().StringVarP(&envFile, "envfile", "f", defaultEnvFile, "Environment descriptor, relative to the mamba root")
	cmd.Flags().StringVarP(&root, "mamba_root", "r", defaultRoot, "Mamba root directory holding micromamba, pkgs/ and envs/")
	cmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "Show version information")
	return cmd
}

func run(ctx context.Context, env runtimeEnv, root, envFile string) error {
	paths := mambaroot.New(root, platform.Host())
	cfg, err := config.Load(paths.Config(), env.getenv)
	if err != nil {
		return err
	}

	logOutput := env.stderr
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOutput = f
	}
	logger := logging.NewLogger(logging.Options{
		Name:   "nodepyenv",
		Level:  cfg.LogLevel,
		JSON:   cfg.JSONLog,
		Output: logOutput,
		Getenv: env.getenv,
	})
	logger.Debug("🔧 Configuration loaded",
		"file", cfg.File,
		"source", cfg.Source,
		"binary_mode", config.FormatMode(cfg.BinaryMode),
		"create_args", cfg.CreateArgs)

	provisioner := provision.New(provision.Options{
		Source:  cfg.Source,
		BaseURL: cfg.BaseURL,
		Mode:    cfg.BinaryMode,
		Logger:  logger.Named("provision"),
		Out:     env.stdout,
	})
	builder := envbuilder.New(envbuilder.Options{
		Provider:   provisioner,
		CreateArgs: cfg.CreateArgs,
		ForceColor: logging.ColorEnabled(env.stdout, env.getenv),
		Logger:     logger.Named("envbuilder"),
		Out:        env.stdout,
	})

	result, err := builder.Create(ctx, root, envFile)
	if err != nil {
		logger.Error("❌ Environment creation failed", "state", builder.State(), "reason", describe(err))
		logger.Debug("🔍 Failure detail", "error", err)
		return err
	}
	logger.Info("✅ Environment ready", "name", result.Name, "interpreter", result.Interpreter)
	return nil
}

// describe returns the one-line message printed for a failed run.
func describe(err error) string {
	var childErr *envbuilder.ChildError
	switch {
	case errors.As(err, &childErr):
		return fmt.Sprintf("micromamba exited with code %d", childErr.Code)
	case errors.Is(err, nperrors.ErrUnsupportedPlatform):
		return "micromamba is only provisioned on linux and windows"
	default:
		return err.Error()
	}
}

func main() {
	// Set up panic recovery to return specific exit code
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(nperrors.ExitPanic)
		}
	}()

	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	// The first interrupt cancels the run; a second one kills nodepyenv.
	context.AfterFunc(ctx, stop)

	cmd := newRootCmd(runtimeEnv{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv})
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "nodepyenv: %s\n", describe(err))
		return nperrors.ExitCode(err)
	}
	return nperrors.ExitSuccess
}
