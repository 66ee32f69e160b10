package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHour is the local time used when a day is named without a time.
const DefaultHour = 9

// dayOffsets maps normalized relative day phrases to offsets from today.
var dayOffsets = map[string]int{
	"اليوم":     0,
	"بكرة":      1,
	"بكره":      1,
	"بكرا":      1,
	"لبكرة":     1,
	"لبكره":     1,
	"لبكرا":     1,
	"غدا":       1,
	"بعد بكرة":  2,
	"بعد بكره":  2,
	"بعد بكرا":  2,
	"بعدبكرة":   2,
	"بعد غد":    2,
}

var (
	dayRe = regexp.MustCompile(leftBound + `(` + dayAlt() + `)` + rightBound)

	offsetRe = regexp.MustCompile(leftBound + `(بعد\s+(?:(\d+(?:\.\d+)?)\s*)?(` + unitAlt + `))` + rightBound)

	clockRe = regexp.MustCompile(leftBound +
		`((الساع[ةه]\s*)?(\d{1,2})(?::(\d{2}))?(?:\s*(صباحا|مساءا|الصبح|المسا|صباح|مساء|am|pm|ص|م))?)` +
		rightBound)

	timeWordRe = regexp.MustCompile(`الساع[ةه]|صباح|مساء|الصبح|المسا|am|pm|\d:\d`)
)

func dayAlt() string {
	return alternation(keys(dayOffsets))
}

// Clock is a parsed time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ExtractDue resolves relative day and time-of-day phrases against now in
// loc. A day without a time lands at 09:00 local; a time without a day means
// today, rolled to tomorrow when already past. It returns ok=false and the
// original text when nothing matches.
func ExtractDue(text string, loc *time.Location, now time.Time) (due time.Time, residual string, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	f := newFolded(text)
	base := now.In(loc)

	var (
		spans      []span
		anchored   bool
		haveDue    bool
		exactClock bool
	)

	if m := dayRe.FindStringSubmatchIndex(f.norm); m != nil {
		phrase := strings.Join(strings.Fields(f.norm[m[2]:m[3]]), " ")
		delta, known := dayOffsets[phrase]
		if !known {
			delta = dayOffsets[strings.ReplaceAll(phrase, " ", "")]
		}
		d := base.AddDate(0, 0, delta)
		due = time.Date(d.Year(), d.Month(), d.Day(), DefaultHour, 0, 0, 0, loc)
		spans = append(spans, f.origSpan(m[2], m[3]))
		anchored, haveDue = true, true
	} else if m := offsetRe.FindStringSubmatchIndex(f.norm); m != nil {
		count := 1.0
		if m[4] >= 0 {
			if v, err := strconv.ParseFloat(f.norm[m[4]:m[5]], 64); err == nil {
				count = v
			}
		}
		mins := int(count * float64(UnitMinutes[f.norm[m[6]:m[7]]]))
		if mins > 0 {
			at := base.Add(time.Duration(mins) * time.Minute)
			if mins < 24*60 {
				due = time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, loc)
				exactClock = true
			} else {
				due = time.Date(at.Year(), at.Month(), at.Day(), DefaultHour, 0, 0, 0, loc)
				anchored = true
			}
			spans = append(spans, f.origSpan(m[2], m[3]))
			haveDue = true
		}
	}

	if c, sp, found := findClock(f); found {
		spans = append(spans, sp)
		switch {
		case anchored || exactClock:
			due = time.Date(due.Year(), due.Month(), due.Day(), c.Hour, c.Minute, 0, 0, loc)
		default:
			due = time.Date(base.Year(), base.Month(), base.Day(), c.Hour, c.Minute, 0, 0, loc)
			if due.Before(base) {
				due = due.AddDate(0, 0, 1)
			}
		}
		haveDue = true
	}

	if !haveDue {
		return time.Time{}, text, false
	}
	return due, removeSpans(text, spans), true
}

// ParseClock reads a time of day from text, e.g. "الساعة 6 مساء" or "18:30".
func ParseClock(text string) (Clock, bool) {
	c, _, ok := findClock(newFolded(text))
	return c, ok
}

// HasDayWord reports whether text names a relative day ("اليوم", "بكرة"...).
func HasDayWord(text string) bool {
	return dayRe.MatchString(Normalize(text))
}

// HasTimeWord reports whether text carries an explicit time-of-day marker.
func HasTimeWord(text string) bool {
	return timeWordRe.MatchString(Normalize(text))
}

// findClock returns the first time-of-day match carrying at least one anchor:
// a "الساعة" prefix, minutes, or a meridiem marker. A bare number is not a
// time.
func findClock(f *folded) (Clock, span, bool) {
	for _, m := range clockRe.FindAllStringSubmatchIndex(f.norm, -1) {
		hasPrefix := m[4] >= 0
		hasMinutes := m[8] >= 0
		meridiem := ""
		if m[10] >= 0 {
			meridiem = f.norm[m[10]:m[11]]
		}
		if !hasPrefix && !hasMinutes && meridiem == "" {
			continue
		}

		hour, err := strconv.Atoi(f.norm[m[6]:m[7]])
		if err != nil {
			continue
		}
		minute := 0
		if hasMinutes {
			minute, _ = strconv.Atoi(f.norm[m[8]:m[9]])
		}

		switch meridiem {
		case "م", "pm", "مساء", "مساءا", "المسا":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour < 12 {
				hour += 12
			}
		case "ص", "am", "صباحا", "صباح", "الصبح":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			continue
		}

		return Clock{Hour: hour, Minute: minute}, f.origSpan(m[2], m[3]), true
	}
	return Clock{}, span{}, false
}
