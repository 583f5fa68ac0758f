// Package trainer runs the external trainer binary for a staged job.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/trainjob/internal/config"
	"github.com/3leaps/trainjob/pkg/fsutil"
	"github.com/3leaps/trainjob/pkg/jobstate"
	"github.com/3leaps/trainjob/pkg/natsort"
)

// RunRecordName is the file in the job folder holding the last command run.
const RunRecordName = "train.run"

// Invoker resolves weights, assembles and runs the trainer command.
type Invoker struct {
	binary  string
	pattern string
	log     *zap.Logger
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.log = l
		}
	}
}

// WithStreams replaces the process streams handed to the trainer.
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(i *Invoker) {
		i.stdin = stdin
		i.stdout = stdout
		i.stderr = stderr
	}
}

// NewInvoker returns an Invoker that inherits the current process streams.
func NewInvoker(cfg *config.Config, opts ...Option) *Invoker {
	pattern := cfg.Checkpoints.Pattern
	if pattern == "" {
		pattern = "*"
	}
	i := &Invoker{
		binary:  cfg.Trainer.Binary,
		pattern: pattern,
		log:     zap.NewNop(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Command is an assembled trainer invocation.
type Command struct {
	Path string
	Args []string
}

// String joins the command tokens with single spaces, as written to the run
// record.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// ResolveWeights picks the weight file for a run. An explicit file wins and
// is copied into the job's cfg folder; otherwise the naturally last
// checkpoint in the backup folder is used. "" means train from scratch.
func (i *Invoker) ResolveWeights(d *jobstate.Descriptor, explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		if !fsutil.Exists(explicit) {
			return "", fmt.Errorf("%w: %s", ErrWeightsNotFound, explicit)
		}
		staged, err := fsutil.CopyInto(explicit, d.CfgFolder)
		if err != nil {
			return "", fmt.Errorf("stage weight file: %w", err)
		}
		i.log.Info("Using explicit weight file", zap.String("weights", staged))
		return staged, nil
	}

	latest, err := i.LatestCheckpoint(d.BackupFolder)
	if err != nil {
		return "", err
	}
	if latest != "" {
		i.log.Info("Resuming from checkpoint", zap.String("weights", latest))
	}
	return latest, nil
}

// LatestCheckpoint returns the last regular file in dir by natural sort, or
// "" if there is none.
func (i *Invoker) LatestCheckpoint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list checkpoints: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if ok, _ := doublestar.Match(i.pattern, e.Name()); !ok {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", nil
	}

	natsort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// BuildCommand assembles
//
//	<build folder>/<binary> <kind> train <data cfg> <net cfg> [weights]
func (i *Invoker) BuildCommand(d *jobstate.Descriptor, kind ProgramKind, weights string) Command {
	args := []string{string(kind), "train", d.NewDataCfgPath, d.NewNetCfgPath}
	if weights != "" {
		args = append(args, weights)
	}
	return Command{
		Path: filepath.Join(d.MakefileFolder, i.binary),
		Args: args,
	}
}

// Train resolves weights, records the command in the job folder and runs the
// trainer in the foreground. A trainer that exits non-zero yields *ExitError.
func (i *Invoker) Train(ctx context.Context, d *jobstate.Descriptor, kind ProgramKind, explicitWeights string) error {
	weights, err := i.ResolveWeights(d, explicitWeights)
	if err != nil {
		return err
	}

	cmd := i.BuildCommand(d, kind, weights)
	line := cmd.String()
	i.log.Info("Trainer command", zap.String("job_id", d.JobID), zap.String("command", line))

	record := filepath.Join(d.JobFolder, RunRecordName)
	if err := os.WriteFile(record, []byte(line), 0644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}

	proc := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	proc.Dir = d.MakefileFolder
	proc.Stdin = i.stdin
	proc.Stdout = i.stdout
	proc.Stderr = i.stderr

	if err := proc.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Command: line, Err: err}
		}
		return fmt.Errorf("start trainer: %w", err)
	}
	i.log.Info("Trainer finished", zap.String("job_id", d.JobID))
	return nil
}
