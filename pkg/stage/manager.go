// Package stage creates and resumes training jobs on disk.
//
// A new job is bootstrapped under the jobs root as:
//
//	<jobs_root>/<job_id>/
//	    job.json          persisted Descriptor, the source of truth for resume
//	    source/           copy of the library root
//	    cfg/              network config, rewritten data config, names/labels
//	    train_data/       train/valid lists
//	    backup/           checkpoints written by the trainer
//
// Steps whose output already exists are skipped, so an interrupted bootstrap
// can be re-run against the same folder.
package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/trainjob/internal/config"
	"github.com/3leaps/trainjob/pkg/dataconfig"
	"github.com/3leaps/trainjob/pkg/fsutil"
	"github.com/3leaps/trainjob/pkg/jobstate"
)

const (
	CfgDirName       = "cfg"
	TrainDataDirName = "train_data"
	BackupDirName    = "backup"

	// sourceCompleteMarker is written to the job folder once the source copy
	// finished. A source folder without it is treated as partial.
	sourceCompleteMarker = ".source-complete"
)

// Manager establishes or resumes a job's on-disk state.
type Manager struct {
	cfg   *config.Config
	store *jobstate.Store
	log   *zap.Logger
	now   func() time.Time
	newID func(time.Time) string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDFunc overrides job id generation.
func WithIDFunc(f func(time.Time) string) Option {
	return func(m *Manager) { m.newID = f }
}

// NewManager returns a Manager for the given configuration.
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		store: jobstate.NewStore(cfg.JobsRoot),
		log:   zap.NewNop(),
		now:   time.Now,
		newID: jobstate.NewID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the descriptor store backing the manager.
func (m *Manager) Store() *jobstate.Store {
	return m.store
}

// CreateRequest carries the user supplied inputs for a new job. Relative
// paths are resolved against the library root.
type CreateRequest struct {
	DataCfgPath string
	NetCfgPath  string
}

// Job is a staged job: its descriptor plus the data config as the trainer
// will see it.
type Job struct {
	Descriptor *jobstate.Descriptor
	Data       *dataconfig.Properties
}

// Create bootstraps a new job and persists its descriptor.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Job, error) {
	dataCfg := m.cfg.Resolve(req.DataCfgPath)
	netCfg := m.cfg.Resolve(req.NetCfgPath)
	if dataCfg == "" {
		return nil, fmt.Errorf("%w: training data config", ErrMissingInput)
	}
	if netCfg == "" {
		return nil, fmt.Errorf("%w: network config", ErrMissingInput)
	}
	for _, p := range []string{dataCfg, netCfg} {
		if !fsutil.Exists(p) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, p)
		}
	}
	if filepath.Base(dataCfg) == filepath.Base(netCfg) {
		return nil, fmt.Errorf("%w: data config and network config are both %q", ErrConfigNameClash, filepath.Base(dataCfg))
	}

	if err := fsutil.EnsureDir(m.cfg.JobsRoot); err != nil {
		return nil, fmt.Errorf("jobs root: %w", err)
	}

	jobID := m.newID(m.now())
	jobDir := m.store.JobDir(jobID)
	log := m.log.With(zap.String("job_id", jobID))
	log.Info("Creating job", zap.String("job_folder", jobDir))

	if err := fsutil.EnsureDir(jobDir); err != nil {
		return nil, fmt.Errorf("create job folder: %w", err)
	}

	d := &jobstate.Descriptor{
		JobID:        jobID,
		JobFolder:    jobDir,
		SourceFolder: filepath.Join(jobDir, m.cfg.Staging.SourceDir),
		DataCfgPath:  dataCfg,
		NetCfgPath:   netCfg,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.stageSource(log, d); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	props, err := m.StageConfig(d)
	if err != nil {
		return nil, err
	}

	if err := m.locateBuildFolder(log, d); err != nil {
		return nil, err
	}

	if err := m.store.Write(d); err != nil {
		return nil, fmt.Errorf("persist job state: %w", err)
	}
	log.Info("Job created", zap.String("state", m.store.JobPath(jobID)))

	return &Job{Descriptor: d, Data: props}, nil
}

// Resume loads a job's persisted descriptor and re-reads its staged data
// config. Nothing is re-staged.
func (m *Manager) Resume(ctx context.Context, jobID string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jobID = strings.TrimSpace(jobID)
	if err := fsutil.CheckDir(m.store.JobDir(jobID)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrJobNotFound, jobID, err)
	}

	d, err := m.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	m.log.Info("Resuming job", zap.String("job_id", d.JobID), zap.String("job_folder", d.JobFolder))

	props, err := dataconfig.ParseFile(d.NewDataCfgPath)
	if err != nil {
		return nil, err
	}
	return &Job{Descriptor: d, Data: props}, nil
}

// stageSource copies the library root into the job's source folder unless a
// previous run completed that copy.
func (m *Manager) stageSource(log *zap.Logger, d *jobstate.Descriptor) error {
	marker := filepath.Join(d.JobFolder, sourceCompleteMarker)
	if fsutil.Exists(marker) {
		log.Debug("Source copy already complete", zap.String("path", d.SourceFolder))
		return nil
	}
	if fsutil.Exists(d.SourceFolder) {
		log.Warn("Discarding partial source copy", zap.String("path", d.SourceFolder))
		if err := os.RemoveAll(d.SourceFolder); err != nil {
			return fmt.Errorf("remove partial source copy: %w", err)
		}
	}

	log.Info("Copying source tree", zap.String("from", m.cfg.LibraryRoot), zap.String("to", d.SourceFolder))
	opts := fsutil.TreeOptions{
		Excludes:  m.cfg.Staging.SourceExcludes,
		SkipPaths: []string{m.cfg.JobsRoot},
	}
	if err := fsutil.CopyTree(m.cfg.LibraryRoot, d.SourceFolder, opts); err != nil {
		return fmt.Errorf("copy source tree: %w", err)
	}

	stamp := m.now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(marker, []byte(stamp), 0644); err != nil {
		return fmt.Errorf("write source marker: %w", err)
	}
	log.Info("Copy finished")
	return nil
}

// locateBuildFolder records the folder of the first build file found in the
// staged source tree. A recorded folder that still exists is kept.
func (m *Manager) locateBuildFolder(log *zap.Logger, d *jobstate.Descriptor) error {
	if d.MakefileFolder != "" && fsutil.Exists(d.MakefileFolder) {
		return nil
	}
	found, err := fsutil.FindFile(d.SourceFolder, m.cfg.Trainer.BuildFile)
	if err != nil {
		return fmt.Errorf("search build file: %w", err)
	}
	if found == "" {
		return fmt.Errorf("%w: no %s in %s", ErrBuildFileNotFound, m.cfg.Trainer.BuildFile, d.SourceFolder)
	}
	d.MakefileFolder = filepath.Dir(found)
	log.Debug("Build folder located", zap.String("path", d.MakefileFolder))
	return nil
}
