package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/trainjob/internal/observability"
	"github.com/3leaps/trainjob/pkg/stage"
	"github.com/3leaps/trainjob/pkg/trainer"
)

// Job commands selectable with -c.
const (
	CommandTrain  = "train"
	CommandRecall = "recall"
	CommandReport = "report"
)

var jobCommands = []string{CommandTrain, CommandRecall, CommandReport}

var (
	jobCommand  string
	jobID       string
	dataCfgFlag string
	netCfgFlag  string
	weightsFlag string
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&jobCommand, "cmd", "c", "", "Command to run: train, recall or report")
	f.StringVarP(&jobID, "id", "i", "", "Existing job id to resume")
	f.StringVarP(&dataCfgFlag, "data-cfg", "d", "", "Training data config, e.g. cfg/voc.data (new jobs)")
	f.StringVarP(&netCfgFlag, "net-cfg", "n", "", "Network config, e.g. cfg/yolov3.cfg (new jobs)")
	f.StringVarP(&weightsFlag, "weight", "w", "", "Weight file to start from instead of the latest checkpoint")
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, err := trainer.ParseProgramKind(args[0])
	if err != nil {
		return exitError(codeInvalidArgument, "Invalid program kind", err)
	}

	action := strings.TrimSpace(jobCommand)
	switch action {
	case CommandTrain:
	case CommandRecall, CommandReport:
		return exitError(codeInvalidArgument, "Unsupported command", fmt.Errorf("%s: %w", action, ErrNotImplemented))
	case "":
		return exitError(codeInvalidArgument, "Command is required", fmt.Errorf("use -c %s", strings.Join(jobCommands, "|")))
	default:
		return exitError(codeInvalidArgument, "Unknown command", fmt.Errorf("%q is not one of %s", action, strings.Join(jobCommands, ", ")))
	}

	resume := strings.TrimSpace(jobID) != ""
	if !resume {
		if strings.TrimSpace(dataCfgFlag) == "" {
			return exitError(codeInvalidArgument, "Training data config is required", fmt.Errorf("pass -d <data cfg> or -i <job id>"))
		}
		if strings.TrimSpace(netCfgFlag) == "" {
			return exitError(codeInvalidArgument, "Network config is required", fmt.Errorf("pass -n <net cfg> or -i <job id>"))
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := observability.CLILogger.With(zap.String("run_id", uuid.New().String()))
	mgr := stage.NewManager(cfg, stage.WithLogger(log))

	var job *stage.Job
	if resume {
		if dataCfgFlag != "" || netCfgFlag != "" {
			log.Warn("Ignoring --data-cfg/--net-cfg when resuming a job")
		}
		job, err = mgr.Resume(ctx, jobID)
		if err != nil {
			return exitError(classify(err), "Failed to resume job", err)
		}
	} else {
		job, err = mgr.Create(ctx, stage.CreateRequest{DataCfgPath: dataCfgFlag, NetCfgPath: netCfgFlag})
		if err != nil {
			return exitError(classify(err), "Failed to create job", err)
		}
	}
	log.Info("Job ready",
		zap.String("job_id", job.Descriptor.JobID),
		zap.String("job_folder", job.Descriptor.JobFolder))

	inv := trainer.NewInvoker(cfg, trainer.WithLogger(log))
	if err := inv.Train(ctx, job.Descriptor, kind, cfg.Resolve(weightsFlag)); err != nil {
		if trainer.IsExitError(err) {
			return exitError(classify(err), "Trainer failed", err)
		}
		return exitError(classify(err), "Failed to run trainer", err)
	}
	return nil
}
