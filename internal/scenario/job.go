package scenario

import (
	"errors"

	"gpubw/internal/inference"
	"gpubw/internal/matrix"
	"gpubw/internal/measure"
	"gpubw/internal/pinning"
	"gpubw/internal/probe"
)

type FailureKind string

const (
	KindProbeTimeout FailureKind = "ProbeTimeout"
	KindProbeFailure FailureKind = "ProbeFailure"
	KindParseError   FailureKind = "ParseError"
)

// Failure is a non-fatal problem with one pinning of one job.
type Failure struct {
	Job      int         `json:"job"`
	Pinning  string      `json:"pinning"`
	Package  *int        `json:"package,omitempty"`
	Devices  []int       `json:"devices,omitempty"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
	ExitCode *int        `json:"exit_code,omitempty"`
	Attempts int         `json:"attempts"`
}

func newFailure(job int, p pinning.Pinning, err error, attempts int) Failure {
	f := Failure{
		Job:      job,
		Pinning:  p.String(),
		Package:  p.Package,
		Devices:  p.Devices,
		Kind:     KindProbeFailure,
		Message:  err.Error(),
		Attempts: attempts,
	}

	var te *probe.TimeoutError
	var fe *probe.FailureError
	var pe *measure.ParseError
	switch {
	case errors.As(err, &te):
		f.Kind = KindProbeTimeout
	case errors.As(err, &fe):
		code := fe.ExitCode
		f.ExitCode = &code
	case errors.As(err, &pe):
		f.Kind = KindParseError
	}
	return f
}

type Output struct {
	Pinning  pinning.Pinning  `json:"pinning"`
	Raw      *probe.RawOutput `json:"raw"`
	Attempts int              `json:"attempts"`
}

// Job is one scheduled unit of work. Under sharing the package it ran on is unknown
// until inference fills Resolved or sets Unresolved.
type Job struct {
	ID              int                   `json:"id"`
	Pinnings        []pinning.Pinning     `json:"pinnings"`
	Visible         []int                 `json:"visible,omitempty"`
	ReportedPackage *int                  `json:"reported_package,omitempty"`
	Resolved        *int                  `json:"resolved,omitempty"`
	Unresolved      bool                  `json:"unresolved,omitempty"`
	Candidates      []inference.Candidate `json:"candidates,omitempty"`
	Tied            []int                 `json:"tied,omitempty"`
	Measurements    []measure.Measurement `json:"measurements,omitempty"`
	Outputs         []Output              `json:"outputs,omitempty"`
	Failures        []Failure             `json:"failures,omitempty"`
	Notes           []string              `json:"notes,omitempty"`

	Partial *matrix.AffinityMatrix `json:"-"`

	parsed bool
}

// Placement records where the scheduler put a shared job relative to the devices it got.
type Placement struct {
	Job             int   `json:"job"`
	Package         int   `json:"package"`
	Visible         []int `json:"visible"`
	LocalDevices    int   `json:"local_devices"`
	Aligned         bool  `json:"aligned"`
	ReportedPackage *int  `json:"reported_package,omitempty"`
	ReportedMatch   *bool `json:"reported_match,omitempty"`
}
