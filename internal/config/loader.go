package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. TRAINJOB_JOBS_ROOT.
	EnvPrefix = "TRAINJOB"

	// ConfigName is the settings file base name searched when no explicit
	// file is given.
	ConfigName = "trainjob"
)

// Keys of the legacy [GLOBAL] settings section, honoured when the primary
// keys are unset.
const (
	legacyLibraryRootKey = "global.yolo_root_path"
	legacyJobsRootKey    = "global.job_root_path"
)

// Options selects the settings sources for Load.
type Options struct {
	// ConfigFile is an explicit settings file. When empty, trainjob.{yaml,json,toml}
	// is searched in the working directory and the user config dir.
	ConfigFile string

	// EnvFile is an optional dotenv file loaded before resolving settings.
	// Variables already present in the environment win.
	EnvFile string

	// Overrides are dotted keys set by the caller (usually CLI flags). They
	// take precedence over every other source.
	Overrides map[string]any
}

// Load resolves configuration with precedence:
//
//	defaults < settings file < TRAINJOB_* environment < overrides
//
// The result is validated; both roots are absolute.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		trimStringsHook(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LibraryRoot == "" {
		cfg.LibraryRoot = v.GetString(legacyLibraryRootKey)
	}
	if cfg.JobsRoot == "" {
		cfg.JobsRoot = v.GetString(legacyJobsRootKey)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("library_root", "")
	v.SetDefault("jobs_root", "")
	v.SetDefault("trainer.binary", "darknet")
	v.SetDefault("trainer.build_file", "Makefile")
	v.SetDefault("staging.source_dir", "source")
	v.SetDefault("staging.source_excludes", []string{})
	v.SetDefault("checkpoints.pattern", "*")
	v.SetDefault("logging.level", "info")
}

func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, ConfigName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// trimStringsHook strips surrounding whitespace from every decoded string.
func trimStringsHook() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.String {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return strings.TrimSpace(s), nil
	}
}
