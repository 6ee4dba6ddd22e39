// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"time"
)

// FormatDuration pretty prints duration with two decimal places in its largest unit, e.g. "1.50ms".
func FormatDuration(d time.Duration) string {
	units := []struct {
		unit time.Duration
		name string
	}{
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
		{time.Millisecond, "ms"},
		{time.Microsecond, "µs"},
	}
	abs := d
	if abs < 0 {
		abs = -abs
	}
	for _, u := range units {
		if abs >= u.unit {
			return fmt.Sprintf("%.2f%s", float64(d)/float64(u.unit), u.name)
		}
	}
	return d.String()
}
