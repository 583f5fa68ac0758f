package dataconfig

import (
	"errors"
	"fmt"
)

// Sentinel errors for data config validation.
var (
	// ErrMissingKey indicates a required key is absent from the config.
	ErrMissingKey = errors.New("required key missing")

	// ErrReferencedFileMissing indicates a key points at a file that does not exist.
	ErrReferencedFileMissing = errors.New("referenced file does not exist")
)

// KeyBackup is injected into every staged config and points at the job's
// checkpoint folder.
const KeyBackup = "backup"

// Destination names the job folder a referenced file is copied into.
type Destination string

const (
	DestTrainData Destination = "train_data"
	DestConfig    Destination = "cfg"
)

// Binding declares a key whose value is a file reference that must be staged.
type Binding struct {
	Key      string
	Dest     Destination
	Required bool
}

// StagedKeys is the contract for data config file references.
var StagedKeys = []Binding{
	{Key: "train", Dest: DestTrainData, Required: true},
	{Key: "valid", Dest: DestTrainData, Required: true},
	{Key: "names", Dest: DestConfig, Required: true},
	{Key: "labels", Dest: DestConfig, Required: false},
}

// KeyError reports a problem with one key of a data config file.
type KeyError struct {
	Key        string
	ConfigPath string
	Value      string
	Err        error
}

func (e *KeyError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: key %q [%s]: %v", e.ConfigPath, e.Key, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: key %q: %v", e.ConfigPath, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// Validate checks that every required binding is present. The first missing
// key is reported.
func (p *Properties) Validate(configPath string, bindings []Binding) error {
	for _, b := range bindings {
		if b.Required && !p.Has(b.Key) {
			return &KeyError{Key: b.Key, ConfigPath: configPath, Err: ErrMissingKey}
		}
	}
	return nil
}

// IsMissingKey returns true if err reports an absent required key.
func IsMissingKey(err error) bool {
	return errors.Is(err, ErrMissingKey)
}
