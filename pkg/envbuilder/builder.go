// SPDX-License-Identifier: Apache-2.0
// Package envbuilder creates a conda environment under a mamba root by
// running micromamba on an environment descriptor.
package envbuilder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/dbkinghorn/nodepyenv/internal/mambaroot"
	"github.com/dbkinghorn/nodepyenv/internal/shellwords"
	"github.com/dbkinghorn/nodepyenv/pkg/descriptor"
	nperrors "github.com/dbkinghorn/nodepyenv/pkg/errors"
	"github.com/dbkinghorn/nodepyenv/pkg/platform"
)

// maxLineSize bounds a single line of micromamba output.
const maxLineSize = 1024 * 1024

// DefaultWaitDelay is how long micromamba gets to exit after an interrupt
// before it is killed and its output pipes are closed.
const DefaultWaitDelay = 10 * time.Second

// colorForceEnvVars are the environment variables set to force color output.
var colorForceEnvVars = []string{
	"FORCE_COLOR=1",       // Node.js, chalk, many modern tools
	"CLICOLOR_FORCE=1",    // BSD/macOS convention
	"COLORTERM=truecolor", // Indicates color support
}

// BinaryProvider returns a usable micromamba for a mamba root.
type BinaryProvider interface {
	EnsureBinary(ctx context.Context, root string) (string, error)
}

// Options configures a Builder.
type Options struct {
	Provider BinaryProvider
	// CreateArgs are appended to the micromamba create command line.
	CreateArgs []string
	// ForceColor asks micromamba for colored output even though its
	// stdout is a pipe.
	ForceColor bool
	// GOOS overrides runtime.GOOS when computing the interpreter path.
	GOOS string
	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
	Logger    hclog.Logger
	// Out receives micromamba's output and the progress messages.
	Out io.Writer
}

// Builder drives micromamba through environment creation.
type Builder struct {
	provider   BinaryProvider
	createArgs []string
	forceColor bool
	waitDelay  time.Duration
	platform   platform.Platform
	logger     hclog.Logger
	out        io.Writer
	state      State
}

// Result describes a created environment.
type Result struct {
	Name        string
	Binary      string
	Descriptor  string
	Interpreter string
	// RunCommand is the shell command that runs a program in the environment
	// through micromamba, with "<command>" as placeholder.
	RunCommand string
}

// New creates a Builder.
func New(opts Options) *Builder {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	b := &Builder{
		provider:   opts.Provider,
		createArgs: opts.CreateArgs,
		forceColor: opts.ForceColor,
		waitDelay:  opts.WaitDelay,
		platform:   platform.Detect(goos),
		logger:     opts.Logger,
		out:        opts.Out,
	}
	if b.logger == nil {
		b.logger = hclog.NewNullLogger()
	}
	if b.out == nil {
		b.out = io.Discard
	}
	if b.waitDelay <= 0 {
		b.waitDelay = DefaultWaitDelay
	}
	return b
}

// State returns the step the last Create call reached.
func (b *Builder) State() State {
	return b.state
}

// Create materializes the environment described by descriptorFile, resolved
// relative to root, and returns where its interpreter lives. micromamba is
// not started unless the descriptor exists and names the environment.
func (b *Builder) Create(ctx context.Context, root, descriptorFile string) (*Result, error) {
	b.transition(StateStart)

	binary, err := b.provider.EnsureBinary(ctx, root)
	if err != nil {
		return nil, b.fail(err)
	}
	b.transition(StateBinaryReady)

	paths := mambaroot.New(root, b.platform)
	envFile := paths.Descriptor(descriptorFile)
	if info, err := os.Stat(envFile); err != nil || info.IsDir() {
		fmt.Fprintf(b.out, "%s not found. Please create an environment.yaml file\n", envFile)
		return nil, b.fail(fmt.Errorf("%w: %s", nperrors.ErrDescriptorMissing, envFile))
	}
	b.transition(StateDescriptorValidated)

	name, found, err := descriptor.Name(envFile)
	if err != nil {
		return nil, b.fail(err)
	}
	if !found {
		fmt.Fprintf(b.out, "%s does not have a name: value entry. Please add a name: value entry to the environment.yaml file\n", envFile)
		return nil, b.fail(fmt.Errorf("%w: %s", nperrors.ErrNameFieldMissing, envFile))
	}
	b.transition(StateNameExtracted)

	fmt.Fprintf(b.out, "\nCreating conda environment %s from %s\n", name, envFile)
	if err := b.runCreate(ctx, binary, paths.Root(), envFile); err != nil {
		fmt.Fprintln(b.out, "Error creating conda environment")
		return nil, b.fail(err)
	}

	result := &Result{
		Name:        name,
		Binary:      binary,
		Descriptor:  envFile,
		Interpreter: paths.Interpreter(name),
		RunCommand:  shellwords.Join([]string{binary, "-r", paths.Root(), "run", "-n", name}) + " <command>",
	}
	b.transition(StateSuccess)
	b.report(result)
	return result, nil
}

// Args returns the micromamba arguments for creating an environment.
func (b *Builder) Args(root, envFile string) []string {
	args := []string{"create", "--yes", "-r", root, "-f", envFile}
	return append(args, b.createArgs...)
}

func (b *Builder) runCreate(ctx context.Context, binary, root, envFile string) error {
	args := b.Args(root, envFile)
	cmd := exec.CommandContext(ctx, binary, args...)
	if b.forceColor {
		cmd.Env = append(os.Environ(), colorForceEnvVars...)
	}
	setGracefulShutdown(cmd)
	cmd.WaitDelay = b.waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	b.logger.Debug("🚀 Executing command", "path", binary, "args", shellwords.Join(args))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %w", nperrors.ErrChildProcessFailed, binary, err)
	}
	b.transition(StateChildRunning)

	// WaitDelay only kills micromamba; a process it spawned can still hold
	// the pipes open, so close our ends once the grace period is over.
	stopWatch := context.AfterFunc(ctx, func() {
		time.AfterFunc(b.waitDelay, func() {
			stdout.Close()
			stderr.Close()
		})
	})
	defer stopWatch()

	// stderr is drained alongside stdout so a chatty child cannot block on
	// a full pipe while we wait for stdout lines.
	var errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})
	g.Go(func() error {
		return b.echo(stdout)
	})
	streamErr := g.Wait()

	waitErr := cmd.Wait()
	if errBuf.Len() > 0 {
		b.logger.Debug("📝 micromamba stderr", "output", strings.TrimSpace(errBuf.String()))
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			b.logger.Info("⏹️ Process exited", "code", exitErr.ExitCode())
			return &ChildError{Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(errBuf.String())}
		}
		return fmt.Errorf("%w: %w", nperrors.ErrChildProcessFailed, waitErr)
	}
	if streamErr != nil {
		return fmt.Errorf("read micromamba output: %w", streamErr)
	}

	b.logger.Info("✅ Process completed successfully")
	return nil
}

// echo writes each line read from r to the output as soon as it arrives.
func (b *Builder) echo(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fmt.Fprintln(b.out, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		// Keep the pipe drained so the child can still exit.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func (b *Builder) report(r *Result) {
	success := color.New(color.FgGreen, color.Bold)
	hint := color.New(color.FgCyan)

	success.Fprintf(b.out, "\nConda environment %s created successfully\n", r.Name)
	fmt.Fprint(b.out, "run commands directly with ")
	hint.Fprintln(b.out, r.RunCommand)
	fmt.Fprint(b.out, "or use the python executable in the environment with ")
	hint.Fprintln(b.out, r.Interpreter)
}

func (b *Builder) transition(s State) {
	b.logger.Trace("🔄 State transition", "from", b.state, "to", s)
	b.state = s
}

func (b *Builder) fail(err error) error {
	b.logger.Debug("❌ Environment creation failed", "state", b.state, "error", err)
	b.transition(StateFailed)
	return err
}

// ChildError reports a micromamba run that exited non-zero. Stderr holds
// what micromamba wrote there; it is not part of the error message.
type ChildError struct {
	Code   int
	Stderr string
}

func (e *ChildError) Error() string {
	return fmt.Sprintf("%v: exit code %d", nperrors.ErrChildProcessFailed, e.Code)
}

func (e *ChildError) Unwrap() error {
	return nperrors.ErrChildProcessFailed
}
