package stage

import (
	"errors"

	"github.com/3leaps/trainjob/pkg/jobstate"
)

// Sentinel errors for job staging.
var (
	// ErrMissingInput indicates a required create-job argument was not given.
	ErrMissingInput = errors.New("required input missing")

	// ErrConfigNotFound indicates a data or network config path does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigNameClash indicates two different files would be staged under
	// the same name in one job folder.
	ErrConfigNameClash = errors.New("staged files share a name")

	// ErrBuildFileNotFound indicates the staged source tree has no build file.
	ErrBuildFileNotFound = errors.New("build file not found")

	// ErrJobNotFound indicates no persisted state exists for a job id.
	ErrJobNotFound = jobstate.ErrNotFound
)
