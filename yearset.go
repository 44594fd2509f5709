package cronbridge

import (
	"fmt"
	"strconv"
	"strings"
)

// yearRange is one comma-separated item of a Cron7 year field: a
// wildcard, a single year, a range, or a stepped range.
type yearRange struct {
	lo, hi, step int
}

func (r yearRange) contains(year int) bool {
	if year < r.lo || year > r.hi {
		return false
	}
	if r.step <= 1 {
		return true
	}
	return (year-r.lo)%r.step == 0
}

// yearConstraint is the parsed form of a Cron7 year field.
type yearConstraint struct {
	wildcard bool
	ranges   []yearRange
}

func (y yearConstraint) contains(year int) bool {
	if y.wildcard {
		return true
	}
	for _, r := range y.ranges {
		if r.contains(year) {
			return true
		}
	}
	return false
}

const (
	minCronYear = 1970
	maxCronYear = 2200
)

func parseYearField(field string) (yearConstraint, error) {
	if field == "" {
		return yearConstraint{}, fmt.Errorf("%w: empty year field", ErrInvalidCron)
	}
	var yc yearConstraint
	for _, item := range strings.Split(field, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return yearConstraint{}, fmt.Errorf("%w: empty year list item", ErrInvalidCron)
		}
		base, step := item, 1
		if idx := strings.IndexByte(item, '/'); idx >= 0 {
			base = item[:idx]
			n, err := strconv.Atoi(item[idx+1:])
			if err != nil || n <= 0 {
				return yearConstraint{}, fmt.Errorf("%w: bad year step %q", ErrInvalidCron, item)
			}
			step = n
		}
		if base == "*" {
			if step == 1 {
				yc.wildcard = true
				continue
			}
			yc.ranges = append(yc.ranges, yearRange{minCronYear, maxCronYear, step})
			continue
		}
		lo, hi := base, base
		if idx := strings.IndexByte(base, '-'); idx >= 0 {
			lo, hi = base[:idx], base[idx+1:]
		}
		loN, err := strconv.Atoi(lo)
		if err != nil {
			return yearConstraint{}, fmt.Errorf("%w: bad year %q", ErrInvalidCron, lo)
		}
		hiN, err := strconv.Atoi(hi)
		if err != nil {
			return yearConstraint{}, fmt.Errorf("%w: bad year %q", ErrInvalidCron, hi)
		}
		if hiN < loN {
			return yearConstraint{}, fmt.Errorf("%w: year range %q is backwards", ErrInvalidCron, base)
		}
		yc.ranges = append(yc.ranges, yearRange{loN, hiN, step})
	}
	return yc, nil
}
