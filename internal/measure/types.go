package measure

import (
	"fmt"
	"time"
)

type Direction string

const (
	HostToDevice Direction = "h2d"
	DeviceToHost Direction = "d2h"
)

const (
	CanonicalUnit = "GB/s"

	// UnboundPackage marks rows from a job that could not name its own package.
	UnboundPackage = -1
)

// Measurement is one directed bandwidth sample between a package and a device.
// For h2d rows the package is the source; for d2h rows it is the destination.
type Measurement struct {
	Package   int       `json:"package"`
	Device    int       `json:"device"`
	Direction Direction `json:"direction"`
	Bandwidth float64   `json:"bandwidth"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Measurement) Bound() bool {
	return m.Package != UnboundPackage
}

func (m Measurement) String() string {
	pkg := "*"
	if m.Bound() {
		pkg = fmt.Sprintf("p%d", m.Package)
	}
	if m.Direction == DeviceToHost {
		return fmt.Sprintf("g%d->%s %.3f %s", m.Device, pkg, m.Bandwidth, m.Unit)
	}
	return fmt.Sprintf("%s->g%d %.3f %s", pkg, m.Device, m.Bandwidth, m.Unit)
}

type ParseError struct {
	LineNo int
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed probe row at line %d (%s): %q", e.LineNo, e.Reason, e.Line)
}
