package timer

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/xraph/asyncexec"
)

var isoDurationRe = regexp.MustCompile(
	`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

// period is a calendar-aware duration. Years, months and days are added
// with time.AddDate so month lengths and DST are respected.
type period struct {
	years, months, days int
	clock               time.Duration
}

func (p period) isZero() bool {
	return p.years == 0 && p.months == 0 && p.days == 0 && p.clock == 0
}

func (p period) addTo(t time.Time) time.Time {
	return t.AddDate(p.years, p.months, p.days).Add(p.clock)
}

// parsePeriod accepts ISO 8601 durations and, as a fallback, Go duration
// strings.
func parsePeriod(s string) (period, error) {
	if m := isoDurationRe.FindStringSubmatch(s); m != nil && s != "P" && s != "PT" && s[len(s)-1] != 'T' {
		var p period
		atoi := func(v string) int {
			if v == "" {
				return 0
			}
			n, _ := strconv.Atoi(v)
			return n
		}
		p.years = atoi(m[1])
		p.months = atoi(m[2])
		p.days = atoi(m[3])*7 + atoi(m[4])
		p.clock = time.Duration(atoi(m[5]))*time.Hour + time.Duration(atoi(m[6]))*time.Minute
		if m[7] != "" {
			secs, err := strconv.ParseFloat(m[7], 64)
			if err != nil {
				return period{}, fmt.Errorf("%w: duration %q: %w", asyncexec.ErrInvalidTimer, s, err)
			}
			p.clock += time.Duration(secs * float64(time.Second))
		}
		if p.isZero() {
			return period{}, fmt.Errorf("%w: zero duration %q", asyncexec.ErrInvalidTimer, s)
		}
		return p, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return period{}, fmt.Errorf("%w: duration %q", asyncexec.ErrInvalidTimer, s)
	}
	if d <= 0 {
		return period{}, fmt.Errorf("%w: duration %q must be positive", asyncexec.ErrInvalidTimer, s)
	}
	return period{clock: d}, nil
}
