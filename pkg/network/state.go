package network

import (
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// Report is the persisted record of one configuration run.
type Report struct {
	Driver     string             `yaml:"driver"`
	Hostname   string             `yaml:"hostname"`
	DryRun     bool               `yaml:"dryRun"`
	Started    time.Time          `yaml:"started"`
	Finished   time.Time          `yaml:"finished"`
	Switches   []SwitchAllocation `yaml:"switches"`
	Interfaces []InterfaceResult  `yaml:"interfaces"`
	Actions    []Action           `yaml:"actions"`
	Error      string             `yaml:"error,omitempty"`
}

// Report snapshots the run so far. runErr, if non-nil, is recorded as the
// failure that ended it.
func (m *Manager) Report(runErr error) *Report {
	r := &Report{
		Driver:     m.drv.Name(),
		Hostname:   m.model.Metadata().Hostname,
		Switches:   m.Switches(),
		Interfaces: m.Interfaces(),
		Actions:    m.Actions(),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// ReportStore loads and saves a Report as YAML. An empty path disables it.
type ReportStore struct {
	mu   sync.Mutex
	path string
}

// NewReportStore returns a store writing to path.
func NewReportStore(path string) *ReportStore {
	return &ReportStore{path: path}
}

// Load reads the last saved report. It fails with a NotFound error when
// the store is disabled or nothing has been saved yet.
func (s *ReportStore) Load() (*Report, error) {
	if s.path == "" {
		return nil, errors.NotFoundf("run report (no report path configured)")
	}

	s.mu.Lock()
	raw, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFoundf("run report %s", s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run report: %w", err)
	}

	var r Report
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parsing run report: %w", err)
	}
	return &r, nil
}

// Save writes r, replacing any previous report.
func (s *ReportStore) Save(r *Report) error {
	if s.path == "" {
		return nil
	}

	raw, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("writing run report to %s: %w", s.path, err)
	}
	return nil
}
