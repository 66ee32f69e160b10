package temporal

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// UnitMinutes maps normalized duration units (singular, dual and plural) to
// minutes.
var UnitMinutes = map[string]int{
	"دقيقة":   1,
	"دقيقه":   1,
	"دقائق":   1,
	"دقايق":   1,
	"دقيقتين": 2,
	"ساعة":    60,
	"ساعه":    60,
	"ساعات":   60,
	"ساعتين":  120,
	"يوم":     1440,
	"يومين":   2880,
	"ايام":    1440,
	"اسبوع":   10080,
	"اسبوعين": 20160,
	"اسابيع":  10080,
	"شهر":     43200,
	"شهرين":   86400,
	"اشهر":    43200,
	"شهور":    43200,
}

// introducers announce a duration ("for the length of ...").
var introducers = []string{"لمدة", "لمده", "مدتها", "مدته", "مدة", "مده", "على مدار", "خلال", "مهلة", "مهله"}

const (
	leftBound  = `(?:^|[^\p{L}\p{N}])`
	rightBound = `(?:$|[^\p{L}\p{N}])`
)

var (
	unitAlt = alternation(keys(UnitMinutes))

	halfPastRe = regexp.MustCompile(leftBound + `(ساع[ةه]\s+ونصف?)` + rightBound)
	halfHourRe = regexp.MustCompile(leftBound + `(نصف?\s+ساع[ةه])` + rightBound)

	introRe       = regexp.MustCompile(leftBound + `(` + alternation(introducers) + `)\s+`)
	introBeforeRe = regexp.MustCompile(leftBound + `(` + alternation(introducers) + `)\s*$`)
	numUnitRe     = regexp.MustCompile(leftBound + `((\d+(?:\.\d+)?)\s*(` + unitAlt + `))` + rightBound)
	unitRe        = regexp.MustCompile(leftBound + `(` + unitAlt + `)` + rightBound)
	afterBeforeRe = regexp.MustCompile(leftBound + `بعد\s*$`)
	clauseEndRe   = regexp.MustCompile(`[\n.,،؛?؟!]`)
)

// ExtractDuration finds a duration phrase such as "لمدة ساعتين" and returns
// its length in minutes and the text with the phrase removed. When nothing
// is found it returns ok=false and the original text.
func ExtractDuration(text string) (minutes int, residual string, ok bool) {
	f := newFolded(text)
	if strings.TrimSpace(f.norm) == "" {
		return 0, text, false
	}

	if m := halfPastRe.FindStringSubmatchIndex(f.norm); m != nil {
		return 90, removeSpans(text, []span{f.withIntro(m[2], m[3])}), true
	}
	if m := halfHourRe.FindStringSubmatchIndex(f.norm); m != nil {
		return 30, removeSpans(text, []span{f.withIntro(m[2], m[3])}), true
	}

	if m := introRe.FindStringSubmatchIndex(f.norm); m != nil {
		candStart := m[1]
		candEnd := len(f.norm)
		if loc := clauseEndRe.FindStringIndex(f.norm[candStart:]); loc != nil {
			candEnd = candStart + loc[0]
		}
		if mins, _, e, found := findUnit(f.norm[candStart:candEnd], false); found {
			return mins, removeSpans(text, []span{f.origSpan(m[2], candStart+e)}), true
		}
	}

	if mins, s, e, found := findUnit(f.norm, true); found {
		return mins, removeSpans(text, []span{f.origSpan(s, e)}), true
	}

	return 0, text, false
}

// findUnit looks for "<number> <unit>" first, then a bare unit. When
// skipAfter is set, units governed by "بعد" are ignored: those are relative
// due offsets, not durations.
func findUnit(s string, skipAfter bool) (minutes, start, end int, ok bool) {
	for _, m := range numUnitRe.FindAllStringSubmatchIndex(s, -1) {
		if skipAfter && afterBeforeRe.MatchString(s[:m[2]]) {
			continue
		}
		num, err := strconv.ParseFloat(s[m[4]:m[5]], 64)
		if err != nil {
			continue
		}
		mins := int(num * float64(UnitMinutes[s[m[6]:m[7]]]))
		if mins > 0 {
			return mins, m[2], m[3], true
		}
	}
	for _, m := range unitRe.FindAllStringSubmatchIndex(s, -1) {
		if skipAfter && afterBeforeRe.MatchString(s[:m[2]]) {
			continue
		}
		if mins := UnitMinutes[s[m[2]:m[3]]]; mins > 0 {
			return mins, m[2], m[3], true
		}
	}
	return 0, 0, 0, false
}

// withIntro widens a normalized span to include an introducer right before it.
func (f *folded) withIntro(ns, ne int) span {
	if m := introBeforeRe.FindStringSubmatchIndex(f.norm[:ns]); m != nil {
		ns = m[2]
	}
	return f.origSpan(ns, ne)
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// alternation builds a regexp alternation, longest phrase first so duals
// win over their singular prefix. Spaces match any whitespace run.
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(sorted[i]), utf8.RuneCountInString(sorted[j])
		if li != lj {
			return li > lj
		}
		return sorted[i] < sorted[j]
	})
	parts := make([]string, len(sorted))
	for i, w := range sorted {
		parts[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return strings.Join(parts, "|")
}
