package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/trainjob/pkg/jobstate"
	"github.com/3leaps/trainjob/pkg/trainer"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect staged jobs",
	Long: `Inspect jobs under the jobs root.

Job ids start with their creation timestamp, so listings are newest first and
short prefixes usually identify a job.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show the saved state of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().String("format", "text", "Output format: text, json or yaml")
}

func jobsStore() (*jobstate.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return jobstate.NewStore(cfg.JobsRoot), nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	store, err := jobsStore()
	if err != nil {
		return err
	}
	jobs, err := store.List()
	if err != nil {
		return exitError(codeFileReadError, "Failed to list jobs", err)
	}

	if jsonOutput {
		if jobs == nil {
			jobs = []jobstate.Descriptor{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tLAST RUN\tDATA CFG\tNET CFG")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			j.JobID,
			lastRun(store, j.JobID),
			j.DataCfgPath,
			j.NetCfgPath,
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(strings.TrimSpace(format))
	out := cmd.OutOrStdout()

	store, err := jobsStore()
	if err != nil {
		return err
	}
	resolvedID, err := store.Resolve(args[0])
	if err != nil {
		return exitError(classify(err), "Job not found", err)
	}
	rec, err := store.Get(resolvedID)
	if err != nil {
		return exitError(classify(err), "Failed to read job state", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(rec)
	case "text", "":
		writeStatusText(out, store, rec)
		return nil
	default:
		return exitError(codeInvalidArgument, "Invalid --format value", fmt.Errorf("unsupported format: %s", format))
	}
}

func writeStatusText(out io.Writer, store *jobstate.Store, rec *jobstate.Descriptor) {
	_, _ = fmt.Fprintf(out, "job_id=%s\n", rec.JobID)
	_, _ = fmt.Fprintf(out, "job_folder=%s\n", rec.JobFolder)
	_, _ = fmt.Fprintf(out, "data_cfg_path=%s\n", rec.DataCfgPath)
	_, _ = fmt.Fprintf(out, "net_cfg_path=%s\n", rec.NetCfgPath)
	_, _ = fmt.Fprintf(out, "new_data_cfg_path=%s\n", rec.NewDataCfgPath)
	_, _ = fmt.Fprintf(out, "new_net_cfg_path=%s\n", rec.NewNetCfgPath)
	_, _ = fmt.Fprintf(out, "backup_folder=%s\n", rec.BackupFolder)
	_, _ = fmt.Fprintf(out, "makefile_folder=%s\n", rec.MakefileFolder)
	if line := readRunRecord(store, rec.JobID); line != "" {
		_, _ = fmt.Fprintf(out, "last_command=%s\n", line)
	}
}

func lastRun(store *jobstate.Store, jobID string) string {
	if readRunRecord(store, jobID) == "" {
		return "-"
	}
	return "recorded"
}

func readRunRecord(store *jobstate.Store, jobID string) string {
	b, err := os.ReadFile(filepath.Join(store.JobDir(jobID), trainer.RunRecordName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
