package scenario

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"gpubw/internal/matrix"
	"gpubw/internal/measure"
)

// Report is the persisted outcome of one run, successful or not.
type Report struct {
	RunID      string                   `json:"run_id"`
	Node       string                   `json:"node"`
	Queue      string                   `json:"queue,omitempty"`
	Scenario   string                   `json:"scenario"`
	Direction  measure.Direction        `json:"direction"`
	State      State                    `json:"state"`
	History    []Transition             `json:"history"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Pinnings   int                      `json:"pinnings"`
	Jobs       []*Job                   `json:"jobs"`
	Placements []Placement              `json:"placements,omitempty"`
	Failures   []Failure                `json:"failures,omitempty"`
	Comparison *matrix.ComparisonReport `json:"comparison,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}

func (r *Report) UnresolvedJobs() []*Job {
	var out []*Job
	for _, job := range r.Jobs {
		if job.Unresolved {
			out = append(out, job)
		}
	}
	return out
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func WriteReport(fs afero.Fs, path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	return matrix.WriteFile(fs, path, data)
}

func LoadReport(fs afero.Fs, path string) (*Report, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read report %s", path)
	}
	report := &Report{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, errors.Wrapf(err, "decode report %s", path)
	}
	return report, nil
}
