package jobstate

// Descriptor is the persistent record written to job.json.
//
// NOTE: The field names are the on-disk contract read back on resume. Every
// path needed to resume a job must live here.
type Descriptor struct {
	JobID           string `json:"job_id" yaml:"job_id"`
	JobFolder       string `json:"job_folder" yaml:"job_folder"`
	SourceFolder    string `json:"source_folder" yaml:"source_folder"`
	CfgFolder       string `json:"cfg_folder" yaml:"cfg_folder"`
	TrainDataFolder string `json:"train_data_folder" yaml:"train_data_folder"`
	BackupFolder    string `json:"backup_folder" yaml:"backup_folder"`
	DataCfgPath     string `json:"data_cfg_path" yaml:"data_cfg_path"`
	NetCfgPath      string `json:"net_cfg_path" yaml:"net_cfg_path"`
	NewDataCfgPath  string `json:"new_data_cfg_path" yaml:"new_data_cfg_path"`
	NewNetCfgPath   string `json:"new_net_cfg_path" yaml:"new_net_cfg_path"`
	MakefileFolder  string `json:"makefile_folder" yaml:"makefile_folder"`
}

// Missing returns the json names of empty fields.
func (d *Descriptor) Missing() []string {
	var out []string
	for _, f := range d.fields() {
		if f.value == "" {
			out = append(out, f.name)
		}
	}
	return out
}

type field struct {
	name  string
	value string
}

func (d *Descriptor) fields() []field {
	return []field{
		{"job_id", d.JobID},
		{"job_folder", d.JobFolder},
		{"source_folder", d.SourceFolder},
		{"cfg_folder", d.CfgFolder},
		{"train_data_folder", d.TrainDataFolder},
		{"backup_folder", d.BackupFolder},
		{"data_cfg_path", d.DataCfgPath},
		{"net_cfg_path", d.NetCfgPath},
		{"new_data_cfg_path", d.NewDataCfgPath},
		{"new_net_cfg_path", d.NewNetCfgPath},
		{"makefile_folder", d.MakefileFolder},
	}
}
