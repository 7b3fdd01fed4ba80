package topology

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// ParseCPUList parses kernel cpulist syntax such as "0-71,144-215".
func ParseCPUList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []int{}, nil
	}

	parts := strings.Split(raw, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if strings.Contains(item, "-") {
			bounds := strings.SplitN(item, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, err
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, err
			}
			if end < start {
				return nil, errors.New("range end before start")
			}
			for i := start; i <= end; i++ {
				values = append(values, i)
			}
			continue
		}
		parsed, err := strconv.Atoi(item)
		if err != nil {
			return nil, err
		}
		values = append(values, parsed)
	}

	sort.Ints(values)
	return dedupeSorted(values), nil
}

func FormatCPUList(cpus []int) string {
	if len(cpus) == 0 {
		return ""
	}
	sorted := make([]int, len(cpus))
	copy(sorted, cpus)
	sort.Ints(sorted)
	sorted = dedupeSorted(sorted)

	parts := make([]string, 0, len(sorted))
	start := sorted[0]
	prev := sorted[0]
	for i := 1; i < len(sorted); i++ {
		current := sorted[i]
		if current == prev+1 {
			prev = current
			continue
		}
		parts = append(parts, formatRange(start, prev))
		start = current
		prev = current
	}
	parts = append(parts, formatRange(start, prev))

	return strings.Join(parts, ",")
}

func formatRange(start, end int) string {
	if start == end {
		return strconv.Itoa(start)
	}
	return strconv.Itoa(start) + "-" + strconv.Itoa(end)
}

func dedupeSorted(values []int) []int {
	if len(values) == 0 {
		return values
	}
	result := make([]int, 0, len(values))
	last := values[0] - 1
	for _, value := range values {
		if value == last {
			continue
		}
		result = append(result, value)
		last = value
	}
	return result
}
