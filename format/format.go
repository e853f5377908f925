// Package format renders tensor sizes for the command line.
package format

import (
	"fmt"
	"strconv"
	"strings"
)

type unit struct {
	size   float64
	suffix string
}

var (
	byteUnits  = []unit{{1e12, " TB"}, {1e9, " GB"}, {1e6, " MB"}, {1e3, " KB"}}
	countUnits = []unit{{1e12, "T"}, {1e9, "B"}, {1e6, "M"}, {1e3, "K"}}
)

// HumanBytes renders a file size in decimal units, e.g. 67.1 MB.
func HumanBytes(b int64) string {
	for _, u := range byteUnits {
		if float64(b) >= u.size {
			return fmt.Sprintf("%.1f%s", float64(b)/u.size, u.suffix)
		}
	}
	return fmt.Sprintf("%d B", b)
}

// HumanNumber renders a parameter or element count with three significant
// digits, e.g. 16.8M.
func HumanNumber(n uint64) string {
	for _, u := range countUnits {
		if v := float64(n) / u.size; v >= 1 {
			return significant(v) + u.suffix
		}
	}
	return strconv.FormatUint(n, 10)
}

func significant(v float64) string {
	switch {
	case v >= 100:
		return fmt.Sprintf("%.0f", v)
	case v >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// Shape renders tensor dimensions as 729x1152. A scalar renders as "scalar".
func Shape(shape []int) string {
	if len(shape) == 0 {
		return "scalar"
	}

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	return strings.Join(dims, "x")
}
