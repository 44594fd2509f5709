package cronbridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/robfig/cron/v3"
)

// dowNameToNumber maps the three-letter day names onto the canonical
// Cron7 day-of-week numbering: 1=Sunday ... 7=Saturday.
var dowNameToNumber = map[string]string{
	"SUN": "1", "MON": "2", "TUE": "3", "WED": "4",
	"THU": "5", "FRI": "6", "SAT": "7",
}

// robfigParser builds six-field (seconds through day-of-week)
// robfig/cron schedules; the year field has no ecosystem-library
// equivalent and is matched separately by Cron7 itself.
var robfigParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Cron7 is the canonical seven-field cron form:
// "seconds minutes hours day-of-month month day-of-week year",
// with day-of-week 1=Sunday...7=Saturday.
type Cron7 struct {
	Seconds, Minutes, Hours string
	DOM, Month, DOW, Year   string

	sched cron.Schedule
	years yearConstraint
}

// String renders the canonical seven-field form.
func (c Cron7) String() string {
	return fmt.Sprintf("%s %s %s %s %s %s %s",
		c.Seconds, c.Minutes, c.Hours, c.DOM, c.Month, c.DOW, c.Year)
}

// Normalise accepts a 5-, 6-, or 7-field cron expression and returns
// its canonical seven-field Cron7 form.
func Normalise(s string) (Cron7, error) {
	raw := strings.TrimSpace(s)
	fields := strings.Fields(raw)

	switch len(fields) {
	case 5:
		if !gronx.IsValid(raw) {
			return Cron7{}, fmt.Errorf("%w: %q", ErrInvalidCron, s)
		}
		return buildCron7(append([]string{"0"}, append(fields, "*")...))

	case 6:
		// Try seconds-led first (sec min hour dom month dow); if that
		// doesn't produce a valid Cron7, fall back to year-trailing
		// (min hour dom month dow year).
		secondsLed := append(append([]string{}, fields...), "*")
		if c, err := buildCron7(secondsLed); err == nil {
			return c, nil
		}
		yearTrailing := append([]string{"0"}, fields...)
		return buildCron7(yearTrailing)

	case 7:
		return buildCron7(fields)

	default:
		return Cron7{}, fmt.Errorf("%w: %q has %d fields, want 5-7", ErrInvalidCron, s, len(fields))
	}
}

func buildCron7(f []string) (Cron7, error) {
	if len(f) != 7 {
		return Cron7{}, fmt.Errorf("%w: expected 7 fields, got %d", ErrInvalidCron, len(f))
	}
	c := Cron7{
		Seconds: f[0], Minutes: f[1], Hours: f[2],
		DOM: f[3], Month: f[4], DOW: f[5], Year: f[6],
	}

	dow := translateDowNames(c.DOW)
	robfigDow, err := shiftDowField(dow)
	if err != nil {
		return Cron7{}, fmt.Errorf("%w: bad day-of-week %q: %v", ErrInvalidCron, c.DOW, err)
	}

	sixField := strings.Join([]string{c.Seconds, c.Minutes, c.Hours, c.DOM, c.Month, robfigDow}, " ")
	sched, err := robfigParser.Parse(sixField)
	if err != nil {
		return Cron7{}, fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	c.sched = sched

	years, err := parseYearField(c.Year)
	if err != nil {
		return Cron7{}, err
	}
	c.years = years

	return c, nil
}

// translateDowNames replaces SUN..SAT tokens (case-insensitive) found
// anywhere in the day-of-week field with their canonical 1..7 digits,
// leaving "*", "/", "-", "," and already-numeric tokens untouched.
func translateDowNames(field string) string {
	upper := strings.ToUpper(field)
	var b strings.Builder
	i := 0
	for i < len(upper) {
		if i+3 <= len(upper) {
			if n, ok := dowNameToNumber[upper[i:i+3]]; ok {
				b.WriteString(n)
				i += 3
				continue
			}
		}
		b.WriteByte(field[i])
		i++
	}
	return b.String()
}

// shiftDowField converts a Cron7 day-of-week field (1=Sunday..7=Saturday,
// already name-translated) into robfig/cron's native numbering
// (0=Sunday..6=Saturday).
func shiftDowField(field string) (string, error) {
	items := strings.Split(field, ",")
	for i, item := range items {
		shifted, err := shiftDowItem(item)
		if err != nil {
			return "", err
		}
		items[i] = shifted
	}
	return strings.Join(items, ","), nil
}

func shiftDowItem(item string) (string, error) {
	base, step := item, ""
	if idx := strings.IndexByte(item, '/'); idx >= 0 {
		base, step = item[:idx], item[idx:]
	}
	if base == "*" {
		return base + step, nil
	}
	if idx := strings.IndexByte(base, '-'); idx >= 0 {
		lo, err := shiftDowDigit(base[:idx])
		if err != nil {
			return "", err
		}
		hi, err := shiftDowDigit(base[idx+1:])
		if err != nil {
			return "", err
		}
		return lo + "-" + hi + step, nil
	}
	d, err := shiftDowDigit(base)
	if err != nil {
		return "", err
	}
	return d + step, nil
}

func shiftDowDigit(s string) (string, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("non-numeric day-of-week token %q", s)
	}
	if n < 1 || n > 7 {
		return "", fmt.Errorf("day-of-week %d out of range 1-7", n)
	}
	n--
	if n < 0 {
		n = 6
	}
	return strconv.Itoa(n), nil
}

// cronHorizonYears bounds how far into the future NextNFirings will search
// before declaring a cron inert.
const cronHorizonYears = 4

// NextNFirings returns the first n UTC instants strictly after nowUTC
// at which cron7 fires, interpreting cron7 as local wall-clock time in
// loc. The returned bool is true if cron7 is inert: fewer than n
// firings exist within the next four years.
func NextNFirings(c Cron7, loc *time.Location, nowUTC time.Time, n int) ([]time.Time, bool) {
	if n <= 0 {
		return nil, false
	}
	nowLocal := nowUTC.In(loc)
	naive := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		nowLocal.Hour(), nowLocal.Minute(), nowLocal.Second(), 0, time.UTC)
	horizon := naive.AddDate(cronHorizonYears, 0, 0)

	var results []time.Time
	candidate := naive
	for len(results) < n {
		candidate = c.sched.Next(candidate)
		if candidate.IsZero() || candidate.After(horizon) {
			return results, true
		}
		if !c.years.contains(candidate.Year()) {
			continue
		}

		// Re-interpret the naive wall-clock candidate in the real
		// zone. If Go normalises it to a different wall clock, the
		// local time never existed (a spring-forward gap); skip it.
		// If it exists but was ambiguous (fall-back), time.Date
		// resolves it using the offset in effect before the
		// transition, i.e. the earlier of the two UTC
		// interpretations, which is exactly the rule we need.
		t := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
			candidate.Hour(), candidate.Minute(), candidate.Second(), 0, loc)
		if t.Year() != candidate.Year() || t.Month() != candidate.Month() || t.Day() != candidate.Day() ||
			t.Hour() != candidate.Hour() || t.Minute() != candidate.Minute() || t.Second() != candidate.Second() {
			continue
		}

		tUTC := t.UTC()
		if !tUTC.After(nowUTC) {
			continue
		}
		results = append(results, tUTC)
	}
	return results, false
}
