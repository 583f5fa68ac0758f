package stage

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/3leaps/trainjob/pkg/dataconfig"
	"github.com/3leaps/trainjob/pkg/fsutil"
	"github.com/3leaps/trainjob/pkg/jobstate"
)

// StageConfig copies the network config and every file referenced by the data
// config into the job folder, then writes a rewritten data config pointing at
// those copies plus a backup entry.
//
// d must carry JobFolder, DataCfgPath and NetCfgPath. The cfg, train data and
// backup folder fields and both rewritten config paths are filled in. The
// network config is copied only if absent; referenced files are always
// refreshed and the rewritten data config is always replaced.
func (m *Manager) StageConfig(d *jobstate.Descriptor) (*dataconfig.Properties, error) {
	log := m.log.With(zap.String("job_id", d.JobID))

	d.CfgFolder = filepath.Join(d.JobFolder, CfgDirName)
	d.TrainDataFolder = filepath.Join(d.JobFolder, TrainDataDirName)
	d.BackupFolder = filepath.Join(d.JobFolder, BackupDirName)
	d.NewDataCfgPath = filepath.Join(d.CfgFolder, filepath.Base(d.DataCfgPath))
	d.NewNetCfgPath = filepath.Join(d.CfgFolder, filepath.Base(d.NetCfgPath))

	if err := fsutil.EnsureDir(d.CfgFolder); err != nil {
		return nil, err
	}
	if !fsutil.Exists(d.NewNetCfgPath) {
		if err := fsutil.CopyFile(d.NetCfgPath, d.NewNetCfgPath); err != nil {
			return nil, fmt.Errorf("stage network config: %w", err)
		}
	}
	if err := fsutil.EnsureDir(d.TrainDataFolder); err != nil {
		return nil, err
	}

	props, err := dataconfig.ParseFile(d.DataCfgPath)
	if err != nil {
		return nil, err
	}
	if err := props.Validate(d.DataCfgPath, dataconfig.StagedKeys); err != nil {
		return nil, err
	}

	dests := map[dataconfig.Destination]string{
		dataconfig.DestTrainData: d.TrainDataFolder,
		dataconfig.DestConfig:    d.CfgFolder,
	}
	// staged maps each destination path to the source copied there.
	staged := map[string]string{
		d.NewNetCfgPath:  d.NetCfgPath,
		d.NewDataCfgPath: d.DataCfgPath,
	}
	for _, b := range dataconfig.StagedKeys {
		value, ok := props.Get(b.Key)
		if !ok {
			continue
		}
		src := m.cfg.Resolve(value)
		if src == "" || !fsutil.Exists(src) {
			return nil, &dataconfig.KeyError{
				Key:        b.Key,
				ConfigPath: d.DataCfgPath,
				Value:      src,
				Err:        dataconfig.ErrReferencedFileMissing,
			}
		}
		dst := filepath.Join(dests[b.Dest], filepath.Base(src))
		if prev, ok := staged[dst]; ok && filepath.Clean(prev) != filepath.Clean(src) {
			return nil, &dataconfig.KeyError{
				Key:        b.Key,
				ConfigPath: d.DataCfgPath,
				Value:      src,
				Err:        fmt.Errorf("%w: %s is already staged from %s", ErrConfigNameClash, dst, prev),
			}
		}
		staged[dst] = src

		copied, err := fsutil.CopyInto(src, dests[b.Dest])
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", b.Key, err)
		}
		props.Set(b.Key, copied)
		log.Debug("Staged data config entry", zap.String("key", b.Key), zap.String("path", copied))
	}

	if err := fsutil.EnsureDir(d.BackupFolder); err != nil {
		return nil, err
	}
	props.Set(dataconfig.KeyBackup, d.BackupFolder)

	if err := props.WriteFile(d.NewDataCfgPath); err != nil {
		return nil, err
	}
	log.Debug("Data config rewritten", zap.String("path", d.NewDataCfgPath), zap.Any("props", props.Map()))
	return props, nil
}
