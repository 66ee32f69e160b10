package chat

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"hound-taskchat/internal/intent"
	"hound-taskchat/internal/match"
	"hound-taskchat/internal/temporal"
)

type answer int

const (
	answerOther answer = iota
	answerYes
	answerNo
)

var (
	// A confirmation is yes or no only when every word of the reply is in
	// the matching set, ignoring a trailing polite phrase.
	yesWords = set("نعم", "اي", "أي", "ايوه", "أيوه", "ايوا", "اه", "آه", "تمام", "اكيد", "أكيد", "طبعا", "موافق", "يلا", "احذف", "احذفها", "امسح", "امسحها", "yes", "y", "ok", "okay", "sure", "yep")
	noWords  = set("لا", "لأ", "مش", "بلاش", "لاء", "كلا", "no", "n", "nope", "cancel")
	// laterWords may follow a no: "مش هلأ".
	laterWords     = set("هلأ", "هلق", "هسا", "هسه", "الحين", "الان", "دلوقتي", "now")
	politeSuffixes = foldAll("لو سمحت", "لو سمحتي", "من فضلك", "شكرا", "يعطيك العافية", "please", "thanks")

	// cancelPhrases only count as the whole message so "الغي الاجتماع"
	// stays a delete request.
	cancelPhrases = set("الغاء", "إلغاء", "الغي", "ألغي", "لغي", "cancel", "stop", "انسى", "انسي", "بطلت", "خلص بلاش", "لا خلص", "وقف", "لا", "لأ", "لاء", "مش", "no")

	ordinals = foldKeys(map[string]int{
		"الاول": 1, "الاولى": 1, "اول": 1, "اولى": 1, "first": 1,
		"الثاني": 2, "الثانية": 2, "الثانيه": 2, "التاني": 2, "التانية": 2, "second": 2,
		"الثالث": 3, "الثالثة": 3, "الثالثه": 3, "التالت": 3, "third": 3,
		"الرابع": 4, "الرابعة": 4, "الرابعه": 4, "fourth": 4,
		"الخامس": 5, "الخامسة": 5, "الخامسه": 5, "fifth": 5,
	})

	choicePrefixes = set("رقم", "الرقم", "number", "no.")

	bareClockRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)
)

func set(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[fold(w)] = true
	}
	return m
}

func foldAll(ws ...string) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = fold(w)
	}
	return out
}

func foldKeys(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[fold(k)] = v
	}
	return out
}

// fold normalizes a short reply for token comparison.
func fold(s string) string {
	s = temporal.Normalize(s)
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
	return strings.Join(strings.Fields(s), " ")
}

func isCancel(msg string) bool {
	return cancelPhrases[fold(msg)]
}

// answerOf classifies a confirmation reply. Anything that is not wholly a
// yes or a no, such as a new delete request or a question, is answerOther.
func answerOf(msg string) answer {
	fields := strings.Fields(stripPolite(fold(msg)))
	for i, f := range fields {
		fields[i] = strings.TrimFunc(f, unicode.IsPunct)
	}
	if len(fields) == 0 {
		return answerOther
	}

	yes, no := true, noWords[fields[0]]
	for i, f := range fields {
		if !yesWords[f] {
			yes = false
		}
		if i > 0 && !noWords[f] && !laterWords[f] {
			no = false
		}
	}
	switch {
	case no:
		return answerNo
	case yes:
		return answerYes
	}
	return answerOther
}

func stripPolite(f string) string {
	for {
		trimmed := f
		for _, p := range politeSuffixes {
			if trimmed != p && strings.HasSuffix(trimmed, " "+p) {
				trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, p))
			}
		}
		trimmed = strings.TrimFunc(trimmed, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r)
		})
		if trimmed == f {
			return f
		}
		f = trimmed
	}
}

// pickCandidate reads a choice: a 1-based number, an ordinal, the exact
// title, or text that matches exactly one listed title.
func pickCandidate(msg string, cands []match.Candidate) (match.Candidate, bool) {
	if len(cands) == 0 {
		return match.Candidate{}, false
	}
	f := fold(msg)
	if fields := strings.Fields(f); len(fields) == 2 && choicePrefixes[fields[0]] {
		f = fields[1]
	}
	f = strings.TrimPrefix(f, "#")

	if n, err := strconv.Atoi(f); err == nil {
		if n >= 1 && n <= len(cands) {
			return cands[n-1], true
		}
		return match.Candidate{}, false
	}
	if n, ok := ordinals[f]; ok && n <= len(cands) {
		return cands[n-1], true
	}

	for _, c := range cands {
		if fold(c.Title) == f {
			return c, true
		}
	}

	items := make([]match.Item, len(cands))
	for i, c := range cands {
		items[i] = match.Item{ID: c.TaskID, Title: c.Title}
	}
	found := match.Search(msg, items, len(items))
	if len(found) == 1 {
		for _, c := range cands {
			if c.TaskID == found[0].TaskID {
				return c, true
			}
		}
	}
	if len(found) > 1 && found[0].Overlap > found[1].Overlap {
		for _, c := range cands {
			if c.TaskID == found[0].TaskID {
				return c, true
			}
		}
	}
	return match.Candidate{}, false
}

// bareClock accepts "6" or "18:30" as the answer to a time question.
func bareClock(msg string) (temporal.Clock, bool) {
	m := bareClockRe.FindStringSubmatch(fold(msg))
	if m == nil {
		return temporal.Clock{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return temporal.Clock{}, false
	}
	return temporal.Clock{Hour: hour, Minute: minute}, true
}

// cleanReply trims a free-text reply used as a title or query.
func cleanReply(msg string) string {
	s := strings.TrimFunc(msg, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > intent.MaxTitleLen {
		s = strings.TrimSpace(string([]rune(s)[:intent.MaxTitleLen]))
	}
	return s
}
