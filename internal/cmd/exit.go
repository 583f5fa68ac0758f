package cmd

import (
	"context"
	"errors"
	"io/fs"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/trainjob/internal/config"
	"github.com/3leaps/trainjob/pkg/dataconfig"
	"github.com/3leaps/trainjob/pkg/fsutil"
	"github.com/3leaps/trainjob/pkg/stage"
	"github.com/3leaps/trainjob/pkg/trainer"
)

// ErrNotImplemented is returned for commands accepted by the parser that have
// no behavior yet.
var ErrNotImplemented = errors.New("not yet implemented")

const codeFailure = 1

var (
	codeInvalidArgument = int(foundry.ExitInvalidArgument)
	codeFileNotFound    = int(foundry.ExitFileNotFound)
	codeFileReadError   = int(foundry.ExitFileReadError)
	codeFileWriteError  = int(foundry.ExitFileWriteError)
	codeSignalInt       = int(foundry.ExitSignalInt)
)

// ExitCodeError carries the process exit code chosen for a failure up to
// Execute, the only place that terminates.
type ExitCodeError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitCodeError{Code: code, Message: message, Err: err}
}

// classify picks an exit code for an error raised by staging or training.
func classify(err error) int {
	var trainerExit *trainer.ExitError
	switch {
	case errors.As(err, &trainerExit):
		if trainerExit.Code < 0 {
			return codeSignalInt
		}
		return trainerExit.Code
	case errors.Is(err, context.Canceled):
		return codeSignalInt
	case errors.Is(err, config.ErrMissingSetting),
		errors.Is(err, stage.ErrMissingInput),
		errors.Is(err, stage.ErrConfigNameClash),
		errors.Is(err, dataconfig.ErrMissingKey),
		errors.Is(err, fsutil.ErrNotDirectory):
		return codeInvalidArgument
	case errors.Is(err, stage.ErrJobNotFound),
		errors.Is(err, stage.ErrConfigNotFound),
		errors.Is(err, stage.ErrBuildFileNotFound),
		errors.Is(err, dataconfig.ErrReferencedFileMissing),
		errors.Is(err, trainer.ErrWeightsNotFound),
		errors.Is(err, fs.ErrNotExist):
		return codeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return codeFileReadError
	default:
		return codeFileWriteError
	}
}

// report logs err and returns the exit code for it.
func report(logger *zap.Logger, err error) int {
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) {
		logger.Error("Command failed", zap.Error(err))
		return codeFailure
	}

	var trainerExit *trainer.ExitError
	if errors.As(err, &trainerExit) {
		logger.Error(exitErr.Message, zap.Int("status", trainerExit.Code), zap.String("command", trainerExit.Command))
	} else if exitErr.Err != nil {
		logger.Error(exitErr.Message, zap.Error(exitErr.Err))
	} else {
		logger.Error(exitErr.Message)
	}
	if exitErr.Code == 0 {
		return codeFailure
	}
	return exitErr.Code
}
