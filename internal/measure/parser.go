package measure

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gpubw/internal/probe"
)

var endpointPattern = regexp.MustCompile(`^(?i)(p|numa|cpu|g|gpu)(\d+)$`)

// unitFactors converts each accepted unit to GB/s (decimal).
var unitFactors = map[string]float64{
	"b/s":   1e-9,
	"kb/s":  1e-6,
	"mb/s":  1e-3,
	"gb/s":  1,
	"tb/s":  1e3,
	"kib/s": 1024 / 1e9,
	"mib/s": 1024 * 1024 / 1e9,
	"gib/s": 1024 * 1024 * 1024 / 1e9,
	"tib/s": 1024 * 1024 * 1024 * 1024 / 1e9,
}

type endpointKind int

const (
	notEndpoint endpointKind = iota
	packageEndpoint
	deviceEndpoint
)

type endpoint struct {
	kind endpointKind
	id   int
}

func Parse(raw *probe.RawOutput) ([]Measurement, error) {
	if raw == nil {
		return nil, nil
	}
	return ParseText(raw.Stdout, raw.CapturedAt)
}

// ParseText reads tabular probe output. Lines whose first field is not an endpoint
// token are headers, footers or metadata and are skipped; rows must have exactly
// source, destination, bandwidth and unit.
func ParseText(text string, at time.Time) ([]Measurement, error) {
	var out []Measurement
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		if parseEndpoint(fields[0]).kind == notEndpoint {
			continue
		}

		m, reason := parseRow(fields)
		if reason != "" {
			return nil, &ParseError{LineNo: i + 1, Line: trimmed, Reason: reason}
		}
		m.Timestamp = at
		out = append(out, m)
	}
	return out, nil
}

func parseRow(fields []string) (Measurement, string) {
	if len(fields) != 4 {
		return Measurement{}, "expected 4 columns, got " + strconv.Itoa(len(fields))
	}

	src := parseEndpoint(fields[0])
	dst := parseEndpoint(fields[1])

	var m Measurement
	switch {
	case src.kind == packageEndpoint && dst.kind == deviceEndpoint:
		m.Package, m.Device, m.Direction = src.id, dst.id, HostToDevice
	case src.kind == deviceEndpoint && dst.kind == packageEndpoint:
		m.Package, m.Device, m.Direction = dst.id, src.id, DeviceToHost
	default:
		return Measurement{}, "row must pair one package with one device"
	}

	value, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Measurement{}, "bandwidth is not a non-negative number"
	}
	factor, ok := unitFactors[strings.ToLower(fields[3])]
	if !ok {
		return Measurement{}, "unknown unit " + fields[3]
	}

	m.Bandwidth = value * factor
	m.Unit = CanonicalUnit
	return m, ""
}

func parseEndpoint(token string) endpoint {
	switch strings.ToLower(token) {
	case "*", "auto":
		return endpoint{kind: packageEndpoint, id: UnboundPackage}
	}
	match := endpointPattern.FindStringSubmatch(token)
	if match == nil {
		return endpoint{}
	}
	id, err := strconv.Atoi(match[2])
	if err != nil {
		return endpoint{}
	}
	switch strings.ToLower(match[1]) {
	case "g", "gpu":
		return endpoint{kind: deviceEndpoint, id: id}
	default:
		return endpoint{kind: packageEndpoint, id: id}
	}
}
