package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/3leaps/trainjob/pkg/fsutil"
)

// ErrMissingSetting indicates a required setting has no value in any source.
var ErrMissingSetting = errors.New("required setting missing")

// Config is the resolved process configuration. It is built once at startup
// and passed to every component that needs it.
type Config struct {
	// LibraryRoot is the trainer source/runtime tree copied into every job.
	LibraryRoot string `mapstructure:"library_root"`

	// JobsRoot holds one folder per job. Created on demand.
	JobsRoot string `mapstructure:"jobs_root"`

	Trainer     TrainerConfig    `mapstructure:"trainer"`
	Staging     StagingConfig    `mapstructure:"staging"`
	Checkpoints CheckpointConfig `mapstructure:"checkpoints"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

type TrainerConfig struct {
	// Binary is the trainer executable name inside the build folder.
	Binary string `mapstructure:"binary"`

	// BuildFile marks the build folder in the staged source tree.
	BuildFile string `mapstructure:"build_file"`
}

type StagingConfig struct {
	// SourceDir is the folder name of the source copy inside a job folder.
	SourceDir string `mapstructure:"source_dir"`

	// SourceExcludes are doublestar patterns, relative to LibraryRoot, left
	// out of the source copy.
	SourceExcludes []string `mapstructure:"source_excludes"`
}

type CheckpointConfig struct {
	// Pattern filters backup folder file names considered as checkpoints.
	Pattern string `mapstructure:"pattern"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Resolve maps a user supplied path to an absolute one. Relative paths are
// taken relative to LibraryRoot, absolute paths are cleaned and returned.
func (c *Config) Resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.LibraryRoot, path)
}

// normalize makes both roots absolute.
func (c *Config) normalize() error {
	c.LibraryRoot = strings.TrimSpace(c.LibraryRoot)
	c.JobsRoot = strings.TrimSpace(c.JobsRoot)
	for _, p := range []*string{&c.LibraryRoot, &c.JobsRoot} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.LibraryRoot == "" {
		result = multierror.Append(result, fmt.Errorf("%w: library_root (env %s_LIBRARY_ROOT)", ErrMissingSetting, EnvPrefix))
	} else if err := fsutil.CheckDir(c.LibraryRoot); err != nil {
		result = multierror.Append(result, fmt.Errorf("library_root: %w", err))
	}
	if c.JobsRoot == "" {
		result = multierror.Append(result, fmt.Errorf("%w: jobs_root (env %s_JOBS_ROOT)", ErrMissingSetting, EnvPrefix))
	}

	if strings.TrimSpace(c.Trainer.Binary) == "" {
		result = multierror.Append(result, fmt.Errorf("%w: trainer.binary", ErrMissingSetting))
	}
	if b := strings.TrimSpace(c.Trainer.BuildFile); b == "" {
		result = multierror.Append(result, fmt.Errorf("%w: trainer.build_file", ErrMissingSetting))
	} else if strings.ContainsAny(b, `/\`) {
		result = multierror.Append(result, fmt.Errorf("trainer.build_file must be a file name, got %q", b))
	}
	if s := strings.TrimSpace(c.Staging.SourceDir); s == "" {
		result = multierror.Append(result, fmt.Errorf("%w: staging.source_dir", ErrMissingSetting))
	} else if strings.ContainsAny(s, `/\`) {
		result = multierror.Append(result, fmt.Errorf("staging.source_dir must be a folder name, got %q", s))
	}

	for _, p := range c.Staging.SourceExcludes {
		if !doublestar.ValidatePattern(p) {
			result = multierror.Append(result, fmt.Errorf("staging.source_excludes: invalid pattern %q", p))
		}
	}
	if !doublestar.ValidatePattern(c.Checkpoints.Pattern) {
		result = multierror.Append(result, fmt.Errorf("checkpoints.pattern: invalid pattern %q", c.Checkpoints.Pattern))
	}

	return result.ErrorOrNil()
}
