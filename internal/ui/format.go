package ui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"gpubw/internal/measure"
)

func FormatBandwidth(v *float64) string {
	if v == nil {
		return "-"
	}
	return humanize.FormatFloat("#,###.##", *v) + " " + measure.CanonicalUnit
}

func FormatDelta(v *float64) string {
	if v == nil {
		return "-"
	}
	s := humanize.FormatFloat("#,###.##", *v)
	if *v > 0 {
		s = "+" + s
	}
	return s
}

func FormatRelative(v *float64) string {
	if v == nil {
		return "-"
	}
	s := humanize.FtoaWithDigits(*v*100, 1) + "%"
	if *v > 0 {
		s = "+" + s
	}
	return s
}

func FormatIDs(prefix string, ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s%d", prefix, id))
	}
	return strings.Join(parts, ",")
}
