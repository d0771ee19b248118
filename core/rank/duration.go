// Copyright 2024 bbaa
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rank

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

var durationPart = regexp.MustCompile(`(?i)(\d+)\s*([dhms])`)

// ParseDuration reads durations such as "1d2h30m", "90m" or "3600". A bare number is a
// count of seconds. Everything between recognized parts is ignored. Durations too long
// for time.Duration are rejected.
func ParseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseUint(s, 10, 63); err == nil {
		return scale(int64(n), time.Second)
	}
	parts := durationPart.FindAllStringSubmatch(s, -1)
	if len(parts) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, part := range parts {
		n, err := strconv.ParseInt(part[1], 10, 64)
		if err != nil {
			return 0, false
		}
		d, ok := scale(n, units[strings.ToLower(part[2])])
		if !ok || total > maxDuration-d {
			return 0, false
		}
		total += d
	}
	return total, true
}

const maxDuration = time.Duration(math.MaxInt64)

var units = map[string]time.Duration{
	"d": day,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

func scale(n int64, unit time.Duration) (time.Duration, bool) {
	if n > int64(maxDuration/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// FormatDuration renders d the way ParseDuration reads it, dropping zero units.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	var b strings.Builder
	for _, unit := range []struct {
		size time.Duration
		name string
	}{{day, "d"}, {time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"}} {
		if n := d / unit.size; n > 0 {
			b.WriteString(strconv.FormatInt(int64(n), 10))
			b.WriteString(unit.name)
			d -= n * unit.size
		}
	}
	return b.String()
}
