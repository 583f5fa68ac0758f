package stage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/trainjob/internal/config"
	"github.com/3leaps/trainjob/pkg/dataconfig"
	"github.com/3leaps/trainjob/pkg/jobstate"
)

const testJobID = "20261018120000007"

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// newLibrary builds a minimal trainer tree:
//
//	Makefile, src/darknet.c, data.cfg, net.cfg, imgs/a.txt, imgs/b.txt, obj.names
func newLibrary(t *testing.T, dataCfg string) string {
	t.Helper()
	lib := t.TempDir()
	writeFile(t, filepath.Join(lib, "Makefile"), "all:\n\tcc -o darknet src/darknet.c\n")
	writeFile(t, filepath.Join(lib, "src", "darknet.c"), "int main(void) { return 0; }\n")
	writeFile(t, filepath.Join(lib, "data.cfg"), dataCfg)
	writeFile(t, filepath.Join(lib, "net.cfg"), "[net]\nbatch=64\n")
	writeFile(t, filepath.Join(lib, "imgs", "a.txt"), "imgs/1.jpg\n")
	writeFile(t, filepath.Join(lib, "imgs", "b.txt"), "imgs/2.jpg\n")
	writeFile(t, filepath.Join(lib, "obj.names"), "cat\ndog\n")
	return lib
}

const baseDataCfg = "classes = 2\ntrain=imgs/a.txt\nvalid=imgs/b.txt\nnames=obj.names\n"

func testConfig(lib, jobsRoot string) *config.Config {
	return &config.Config{
		LibraryRoot: lib,
		JobsRoot:    jobsRoot,
		Trainer:     config.TrainerConfig{Binary: "darknet", BuildFile: "Makefile"},
		Staging:     config.StagingConfig{SourceDir: "source"},
		Checkpoints: config.CheckpointConfig{Pattern: "*"},
	}
}

func newTestManager(cfg *config.Config, opts ...Option) *Manager {
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDFunc(func(time.Time) string { return testJobID }),
	}
	return NewManager(cfg, append(base, opts...)...)
}

func TestCreate_EndToEnd(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	jobsRoot := filepath.Join(t.TempDir(), "jobs")
	m := newTestManager(testConfig(lib, jobsRoot))

	job, err := m.Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)

	jobDir := filepath.Join(jobsRoot, testJobID)
	d := job.Descriptor
	assert.Equal(t, testJobID, d.JobID)
	assert.Equal(t, jobDir, d.JobFolder)
	assert.DirExists(t, jobDir)

	// Source tree copied and build folder found in it.
	assert.FileExists(t, filepath.Join(jobDir, "source", "src", "darknet.c"))
	assert.FileExists(t, filepath.Join(jobDir, sourceCompleteMarker))
	assert.Equal(t, filepath.Join(jobDir, "source"), d.MakefileFolder)

	// Configs staged.
	assert.Equal(t, filepath.Join(lib, "data.cfg"), d.DataCfgPath)
	assert.Equal(t, filepath.Join(lib, "net.cfg"), d.NetCfgPath)
	assert.Equal(t, filepath.Join(jobDir, "cfg", "data.cfg"), d.NewDataCfgPath)
	assert.Equal(t, filepath.Join(jobDir, "cfg", "net.cfg"), d.NewNetCfgPath)
	assert.FileExists(t, d.NewNetCfgPath)
	assert.DirExists(t, filepath.Join(jobDir, "backup"))

	rewritten, err := dataconfig.ParseFile(d.NewDataCfgPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"classes": "2",
		"train":   filepath.Join(jobDir, "train_data", "a.txt"),
		"valid":   filepath.Join(jobDir, "train_data", "b.txt"),
		"names":   filepath.Join(jobDir, "cfg", "obj.names"),
		"backup":  filepath.Join(jobDir, "backup"),
	}, rewritten.Map())
	assert.Equal(t, rewritten.Map(), job.Data.Map())

	for _, key := range []string{"train", "valid", "names"} {
		v, _ := rewritten.Get(key)
		assert.FileExists(t, v)
	}

	// Persisted state enumerates every descriptor field.
	b, err := os.ReadFile(filepath.Join(jobDir, jobstate.FileName))
	require.NoError(t, err)
	var flat map[string]string
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Len(t, flat, 11)
	for k, v := range flat {
		assert.NotEmpty(t, v, "field %s", k)
	}
}

func TestCreate_LogsJobID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lib := newLibrary(t, baseDataCfg)
	m := newTestManager(testConfig(lib, t.TempDir()), WithLogger(zap.New(core)))

	_, err := m.Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)

	created := logs.FilterMessage("Creating job").All()
	require.Len(t, created, 1)
	assert.Equal(t, testJobID, created[0].ContextMap()["job_id"])
}

func TestCreate_AbsolutePathsPassThrough(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	external := t.TempDir()
	writeFile(t, filepath.Join(external, "voc.data"),
		"train="+filepath.Join(lib, "imgs", "a.txt")+"\nvalid=imgs/b.txt\nnames=obj.names\n")

	m := newTestManager(testConfig(lib, t.TempDir()))
	job, err := m.Create(context.Background(), CreateRequest{
		DataCfgPath: filepath.Join(external, "voc.data"),
		NetCfgPath:  "net.cfg",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(external, "voc.data"), job.Descriptor.DataCfgPath)
	assert.Equal(t, filepath.Join(job.Descriptor.CfgFolder, "voc.data"), job.Descriptor.NewDataCfgPath)
}

func TestCreate_OptionalLabels(t *testing.T) {
	lib := newLibrary(t, baseDataCfg+"labels = \"labels.list\"\n")
	writeFile(t, filepath.Join(lib, "labels.list"), "cat\ndog\n")

	m := newTestManager(testConfig(lib, t.TempDir()))
	job, err := m.Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)

	labels, ok := job.Data.Get("labels")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(job.Descriptor.CfgFolder, "labels.list"), labels)
	assert.FileExists(t, labels)
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		dataCfg string
		req     CreateRequest
		extra   map[string]string
		noMake  bool
		check   func(t *testing.T, err error)
	}{
		{
			name:    "missing train key",
			dataCfg: "valid=imgs/b.txt\nnames=obj.names\n",
			req:     CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"},
			check: func(t *testing.T, err error) {
				assert.True(t, dataconfig.IsMissingKey(err))
				var keyErr *dataconfig.KeyError
				require.ErrorAs(t, err, &keyErr)
				assert.Equal(t, "train", keyErr.Key)
				assert.Contains(t, err.Error(), "data.cfg")
			},
		},
		{
			name:    "missing names key",
			dataCfg: "train=imgs/a.txt\nvalid=imgs/b.txt\n",
			req:     CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"},
			check: func(t *testing.T, err error) {
				var keyErr *dataconfig.KeyError
				require.ErrorAs(t, err, &keyErr)
				assert.Equal(t, "names", keyErr.Key)
			},
		},
		{
			name:    "referenced file missing",
			dataCfg: "train=imgs/a.txt\nvalid=imgs/missing.txt\nnames=obj.names\n",
			req:     CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, dataconfig.ErrReferencedFileMissing)
				assert.Contains(t, err.Error(), "valid")
				assert.Contains(t, err.Error(), "missing.txt")
			},
		},
		{
			name:    "data config not given",
			dataCfg: baseDataCfg,
			req:     CreateRequest{NetCfgPath: "net.cfg"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMissingInput)
			},
		},
		{
			name:    "network config does not exist",
			dataCfg: baseDataCfg,
			req:     CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "cfg/nope.cfg"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrConfigNotFound)
				assert.Contains(t, err.Error(), "nope.cfg")
			},
		},
		{
			name:    "data and network config share a name",
			dataCfg: baseDataCfg,
			req:     CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "nets/data.cfg"},
			extra:   map[string]string{"nets/data.cfg": "[net]\n"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrConfigNameClash)
			},
		},
		{
			name:    "train and valid share a name",
			dataCfg: "train=imgs/a.txt\nvalid=holdout/a.txt\nnames=obj.names\n",
			req:     CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"},
			extra:   map[string]string{"holdout/a.txt": "imgs/3.jpg\n"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrConfigNameClash)
				var keyErr *dataconfig.KeyError
				require.ErrorAs(t, err, &keyErr)
				assert.Equal(t, "valid", keyErr.Key)
			},
		},
		{
			name:    "build file not found",
			dataCfg: baseDataCfg,
			req:     CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"},
			noMake:  true,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrBuildFileNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := newLibrary(t, tt.dataCfg)
			for rel, content := range tt.extra {
				writeFile(t, filepath.Join(lib, rel), content)
			}
			if tt.noMake {
				require.NoError(t, os.Remove(filepath.Join(lib, "Makefile")))
			}
			jobsRoot := t.TempDir()
			m := newTestManager(testConfig(lib, jobsRoot))

			_, err := m.Create(context.Background(), tt.req)
			require.Error(t, err)
			tt.check(t, err)
			assert.NoFileExists(t, filepath.Join(jobsRoot, testJobID, jobstate.FileName))
		})
	}
}

func TestCreate_TrainAndValidSameFile(t *testing.T) {
	lib := newLibrary(t, "train=imgs/a.txt\nvalid=imgs/a.txt\nnames=obj.names\n")
	m := newTestManager(testConfig(lib, t.TempDir()))

	job, err := m.Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)

	train, _ := job.Data.Get("train")
	valid, _ := job.Data.Get("valid")
	assert.Equal(t, train, valid)
	assert.Equal(t, filepath.Join(job.Descriptor.TrainDataFolder, "a.txt"), train)
}

func TestCreate_CancelledContext(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	m := newTestManager(testConfig(lib, t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Create(ctx, CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStageConfig_Idempotent(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	m := newTestManager(testConfig(lib, t.TempDir()))

	job, err := m.Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)
	first := *job.Descriptor
	firstData, err := os.ReadFile(first.NewDataCfgPath)
	require.NoError(t, err)
	firstNet, err := os.ReadFile(first.NewNetCfgPath)
	require.NoError(t, err)

	again := first
	props, err := m.StageConfig(&again)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, job.Data.Map(), props.Map())

	secondData, err := os.ReadFile(again.NewDataCfgPath)
	require.NoError(t, err)
	secondNet, err := os.ReadFile(again.NewNetCfgPath)
	require.NoError(t, err)
	assert.Equal(t, firstData, secondData)
	assert.Equal(t, firstNet, secondNet)
}

func TestStageConfig_KeepsExistingNetworkConfig(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	m := newTestManager(testConfig(lib, t.TempDir()))

	job, err := m.Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)

	// An operator edit to the job-local copy survives re-staging.
	writeFile(t, job.Descriptor.NewNetCfgPath, "[net]\nbatch=16\n")
	_, err = m.StageConfig(job.Descriptor)
	require.NoError(t, err)

	b, err := os.ReadFile(job.Descriptor.NewNetCfgPath)
	require.NoError(t, err)
	assert.Equal(t, "[net]\nbatch=16\n", string(b))
}

func TestStageSource_RecopiesPartialTree(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	m := newTestManager(testConfig(lib, t.TempDir()))

	jobDir := m.Store().JobDir(testJobID)
	d := &jobstate.Descriptor{JobID: testJobID, JobFolder: jobDir, SourceFolder: filepath.Join(jobDir, "source")}
	writeFile(t, filepath.Join(d.SourceFolder, "half-copied.o"), "junk")

	require.NoError(t, m.stageSource(zap.NewNop(), d))
	assert.NoFileExists(t, filepath.Join(d.SourceFolder, "half-copied.o"))
	assert.FileExists(t, filepath.Join(d.SourceFolder, "Makefile"))

	// Once marked complete the tree is trusted as is.
	writeFile(t, filepath.Join(d.SourceFolder, "local-edit.c"), "x")
	require.NoError(t, m.stageSource(zap.NewNop(), d))
	assert.FileExists(t, filepath.Join(d.SourceFolder, "local-edit.c"))
}

func TestCreate_JobsRootInsideLibrary(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	jobsRoot := filepath.Join(lib, "jobs")
	m := newTestManager(testConfig(lib, jobsRoot))

	job, err := m.Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(job.Descriptor.SourceFolder, "jobs"))
}

func TestResume_Fidelity(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	cfg := testConfig(lib, t.TempDir())

	created, err := newTestManager(cfg).Create(context.Background(), CreateRequest{DataCfgPath: "data.cfg", NetCfgPath: "net.cfg"})
	require.NoError(t, err)

	resumed, err := NewManager(cfg).Resume(context.Background(), testJobID)
	require.NoError(t, err)

	assert.Equal(t, *created.Descriptor, *resumed.Descriptor)
	assert.Equal(t, created.Descriptor.NewDataCfgPath, resumed.Descriptor.NewDataCfgPath)
	assert.Equal(t, created.Descriptor.NewNetCfgPath, resumed.Descriptor.NewNetCfgPath)
	assert.Equal(t, created.Descriptor.BackupFolder, resumed.Descriptor.BackupFolder)
	assert.Equal(t, created.Descriptor.MakefileFolder, resumed.Descriptor.MakefileFolder)
	assert.Equal(t, created.Data.Map(), resumed.Data.Map())
}

func TestResume_UnknownJob(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	m := NewManager(testConfig(lib, t.TempDir()))

	_, err := m.Resume(context.Background(), "20200101000000001")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestResume_FolderWithoutState(t *testing.T) {
	lib := newLibrary(t, baseDataCfg)
	jobsRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(jobsRoot, "20200101000000001"), 0755))

	_, err := NewManager(testConfig(lib, jobsRoot)).Resume(context.Background(), "20200101000000001")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
