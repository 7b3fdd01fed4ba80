package measure

import (
	"strconv"
	"strings"
)

// Render writes measurements in the probe's tabular format.
func Render(ms []Measurement) string {
	var b strings.Builder
	b.WriteString("source\tdestination\tbandwidth\tunit\n")
	for _, m := range ms {
		pkg := "*"
		if m.Bound() {
			pkg = "p" + strconv.Itoa(m.Package)
		}
		dev := "g" + strconv.Itoa(m.Device)
		src, dst := pkg, dev
		if m.Direction == DeviceToHost {
			src, dst = dev, pkg
		}
		unit := m.Unit
		if unit == "" {
			unit = CanonicalUnit
		}
		b.WriteString(src + "\t" + dst + "\t" + strconv.FormatFloat(m.Bandwidth, 'f', -1, 64) + "\t" + unit + "\n")
	}
	b.WriteString("# rows: " + strconv.Itoa(len(ms)) + "\n")
	return b.String()
}
