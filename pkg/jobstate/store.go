package jobstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound indicates no job.json exists for the requested job id.
var ErrNotFound = errors.New("job not found")

// FileName is the name of the persisted descriptor inside each job folder.
const FileName = "job.json"

// Store persists and loads Descriptors from the jobs root.
//
// Directory layout:
//
//	<root>/<job_id>/job.json
//	<root>/<job_id>/train.run
//	<root>/<job_id>/{source,cfg,train_data,backup}/
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func (s *Store) JobPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), FileName)
}

// Write atomically replaces job.json for d.JobID.
func (s *Store) Write(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("job descriptor is nil")
	}
	jobID := strings.TrimSpace(d.JobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("jobs root dir is empty")
	}

	jobDir := s.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job descriptor: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, FileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}

	if err := os.Rename(tmpName, s.JobPath(jobID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

// Get loads the descriptor for jobID.
func (s *Store) Get(jobID string) (*Descriptor, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}
	path := s.JobPath(jobID)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, jobID, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("%s is empty", path)
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if missing := d.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing fields: %s", path, strings.Join(missing, ", "))
	}
	if d.JobID != jobID {
		return nil, fmt.Errorf("%s: job_id %q does not match folder %q", path, d.JobID, jobID)
	}
	return &d, nil
}

// List returns every readable descriptor under the root, newest first. Job
// ids start with a timestamp, so id order is creation order.
func (s *Store) List() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs root: %w", err)
	}

	out := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		d, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *d)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].JobID > out[j].JobID
	})
	return out, nil
}

// Resolve maps a full job id or an unambiguous prefix to a job id.
func (s *Store) Resolve(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	if _, err := os.Stat(s.JobPath(input)); err == nil {
		return input, nil
	}

	jobs, err := s.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.JobID, input) {
			matches = append(matches, j.JobID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("job id prefix is ambiguous (%d matches); use the full job_id", len(matches))
	}
	return matches[0], nil
}
