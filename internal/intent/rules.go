package intent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"hound-taskchat/internal/temporal"
)

// MaxTitleLen caps extracted titles, in runes.
const MaxTitleLen = 60

// Trigger vocabularies, matched against normalized tokens. A single word also
// matches with an attached object pronoun ("امسحها", "الغيه").
var (
	deleteTriggers   = words("احذف", "حذف", "امسح", "شيل", "اشطب", "الغ", "الغي", "إلغاء مهمة", "delete", "remove")
	listTriggers     = words("مهامي", "مهماتي", "المهام", "مهام", "شو عندي", "اعرض المهام", "ورجيني مهامي", "ما هي المهام", "list tasks", "show tasks", "my tasks")
	completeTriggers = words("خلصت", "خلصنا", "انجزت", "أنجزت", "انهيت", "كملت", "تم انجاز", "done", "complete", "completed", "finished")
	updateTriggers   = words("عدل", "عدّل", "غير", "غيّر", "بدل", "أجل", "اجّل", "حدث", "update", "change", "rename", "postpone")
	createTriggers   = words("بدي", "بدّي", "ذكرني", "ذكّرني", "ذكر", "لازم", "مهمة", "موعد", "تذكير", "حجز", "اضف", "أضف", "ضيف", "سجل", "create", "add")

	politeWords = words("بدي", "بدك", "ممكن", "لو سمحت", "خلينا", "please", "من فضلك")
	taskNouns   = words("مهمة", "المهمة", "موعد", "الموعد", "task", "the", "اسم", "عنوان")

	doneWords  = words("المنجزة", "المنجزه", "منجزة", "المنتهية", "المكتملة", "اللي خلصت", "خلصتها", "done", "completed", "finished")
	allWords   = words("كل", "كلها", "جميع", "all")
	todayWords = words("اليوم", "today")

	createLead  = words("بدي", "بدّي", "أضف", "اضف", "ضيف", "سجل", "سجلي", "اعمل", "خلينا", "مهمة", "task", "لو سمحت", "ممكن", "ذكرني", "ذكّرني", "لازم", "موعد", "add", "create")
	remindWords = words("ذكرني", "ذكّرني")

	pronounSuffixes = map[string]bool{"ي": true, "ني": true, "لي": true, "ها": true, "ه": true, "هم": true, "يها": true, "يه": true}

	renameSepRe = regexp.MustCompile(`\s+(?:إلى|الى|الي|لـ|ل|to|ب)\s+`)
)

func words(ws ...string) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = temporal.Normalize(w)
	}
	return out
}

// RuleExtractor interprets messages without a language model.
type RuleExtractor struct {
	now func() time.Time
}

// NewRuleExtractor returns an extractor using now as its clock (time.Now if nil).
func NewRuleExtractor(now func() time.Time) *RuleExtractor {
	if now == nil {
		now = time.Now
	}
	return &RuleExtractor{now: now}
}

// rule is one row of the classification priority table.
type rule struct {
	kind  Kind
	fires func(m *message) bool
	build func(m *message) Result
}

// rules is evaluated top to bottom; the first rule that fires wins. Delete
// comes first so a delete phrase is never read as a creation request.
var rules = []rule{
	{DeleteTask, func(m *message) bool { return m.hasAny(deleteTriggers) }, buildDelete},
	{ListTasks, func(m *message) bool { return m.hasAny(listTriggers) }, buildList},
	{CompleteTask, func(m *message) bool { return m.hasAny(completeTriggers) }, buildComplete},
	{UpdateTask, func(m *message) bool { return m.leadsWith(updateTriggers) }, buildUpdate},
	{CreateTask, func(m *message) bool {
		return m.hasAny(createTriggers) || m.duration > 0 || m.hasDue
	}, buildCreate},
}

// Extract classifies message and extracts its entities. loc resolves
// relative due phrases (UTC when nil).
func (x *RuleExtractor) Extract(message string, loc *time.Location) Result {
	if loc == nil {
		loc = time.UTC
	}
	m := parse(message, loc, x.now())
	for _, r := range rules {
		if r.fires(m) {
			res := r.build(m)
			res.Intent = r.kind
			res.Normalize()
			return res
		}
	}
	res := Result{Intent: Chat, Due: Due{Kind: DueNone}, Confidence: 0.3}
	res.Normalize()
	return res
}

type message struct {
	text     string
	tokens   []string
	phrase   string
	loc      *time.Location
	now      time.Time
	duration int
	due      time.Time
	hasDue   bool
	residual string
}

func parse(text string, loc *time.Location, now time.Time) *message {
	m := &message{text: strings.TrimSpace(text), loc: loc, now: now}
	m.tokens = tokenize(m.text)
	m.phrase = " " + strings.Join(m.tokens, " ") + " "

	// duration first, then due on what is left
	mins, rest, ok := temporal.ExtractDuration(m.text)
	if ok {
		m.duration = mins
	}
	due, rest, ok := temporal.ExtractDue(rest, loc, now)
	if ok {
		m.due, m.hasDue = due, true
	}
	m.residual = rest
	return m
}

func tokenize(s string) []string {
	return strings.FieldsFunc(temporal.Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (m *message) hasAny(triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(t, " ") {
			if strings.Contains(m.phrase, " "+t+" ") {
				return true
			}
			continue
		}
		for _, tok := range m.tokens {
			if wordMatch(tok, t) {
				return true
			}
		}
	}
	return false
}

// leadsWith reports whether the first token after polite fillers is a trigger.
func (m *message) leadsWith(triggers []string) bool {
	rest := stripLead(m.text, politeWords)
	toks := tokenize(rest)
	if len(toks) == 0 {
		return false
	}
	for _, t := range triggers {
		if wordMatch(toks[0], t) {
			return true
		}
	}
	return false
}

func wordMatch(tok, w string) bool {
	if tok == w {
		return true
	}
	return strings.HasPrefix(tok, w) && pronounSuffixes[tok[len(w):]]
}

// stripLead drops leading words (or two-word phrases) found in lead,
// repeatedly, keeping the original spelling of what remains.
func stripLead(text string, lead []string) string {
	fields := strings.Fields(text)
	for len(fields) > 0 {
		if len(fields) > 1 && contains(lead, normWord(fields[0])+" "+normWord(fields[1])) {
			fields = fields[2:]
			continue
		}
		w := normWord(fields[0])
		matched := false
		for _, l := range lead {
			if !strings.Contains(l, " ") && wordMatch(w, l) {
				matched = true
				break
			}
		}
		if !matched {
			break
		}
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func normWord(s string) string {
	return strings.Trim(temporal.Normalize(s), " -،,:.!?؟؛\"'")
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func cleanTitle(s string) string {
	s = strings.Trim(strings.Join(strings.Fields(s), " "), " -–،,:.!?؟؛\"'")
	if utf8.RuneCountInString(s) > MaxTitleLen {
		s = strings.TrimSpace(string([]rune(s)[:MaxTitleLen]))
	}
	return s
}

// titleHint strips command words from a delete request.
func titleHint(text string) string {
	lead := append(append(append([]string{}, deleteTriggers...), politeWords...), taskNouns...)
	return cleanTitle(stripLead(text, lead))
}

func buildDelete(m *message) Result {
	q := titleHint(m.text)
	r := Result{
		TitleQuery: q,
		Due:        Due{Kind: DueNone},
		Confidence: 0.62,
	}
	if q == "" {
		r.NeedsClarification = true
		r.ClarifyKey = "ask_delete_query"
		return r
	}
	r.NeedsConfirmation = true
	r.ConfirmMessage = fmt.Sprintf("بدك أحذف: %s ؟ (نعم/لا)", q)
	return r
}

func buildList(m *message) Result {
	r := Result{
		Due:             Due{Kind: DueNone},
		DurationMinutes: m.duration,
		Status:          "todo",
		Scope:           "all",
		Confidence:      0.5,
	}
	switch {
	case m.hasAny(doneWords):
		r.Status = "done"
	case m.hasAny(allWords):
		r.Status = "all"
	}
	if m.hasAny(todayWords) {
		r.Scope = "today"
	}
	return r
}

func buildComplete(m *message) Result {
	lead := append(append(append([]string{}, completeTriggers...), politeWords...), taskNouns...)
	q := cleanTitle(stripLead(m.text, lead))
	r := Result{TitleQuery: q, Due: Due{Kind: DueNone}, Confidence: 0.55}
	if q == "" {
		r.NeedsClarification = true
		r.ClarifyKey = "ask_complete_query"
	}
	return r
}

func buildUpdate(m *message) Result {
	lead := append(append(append([]string{}, politeWords...), updateTriggers...), taskNouns...)
	body := stripLead(m.text, lead)

	r := Result{Due: Due{Kind: DueNone}, Confidence: 0.5}
	if due, rest, ok := temporal.ExtractDue(body, m.loc, m.now); ok {
		r.Due = Due{Kind: DueResolved, ISO: due.Format(time.RFC3339), Confidence: 0.6}
		body = rest
	}

	query, newTitle := body, ""
	if loc := renameSepRe.FindStringIndex(body); loc != nil {
		query, newTitle = body[:loc[0]], body[loc[1]:]
	}
	r.TitleQuery = cleanTitle(stripLead(query, taskNouns))
	r.NewTitle = cleanTitle(newTitle)

	switch {
	case r.TitleQuery == "":
		r.NeedsClarification = true
		r.ClarifyKey = "ask_update_query"
	case r.NewTitle == "" && r.Due.Kind == DueNone:
		r.NeedsClarification = true
		r.ClarifyKey = "ask_update_patch"
	}
	return r
}

func buildCreate(m *message) Result {
	r := Result{
		Title:           createTitle(m.residual),
		DurationMinutes: m.duration,
		Due:             Due{Kind: DueNone},
		Confidence:      0.45,
	}
	if !m.hasDue {
		return r
	}
	iso := m.due.Format(time.RFC3339)
	if temporal.HasDayWord(m.text) && !temporal.HasTimeWord(m.text) {
		r.Due = Due{Kind: DueMissing, ISO: iso, Confidence: 0.3}
		r.NeedsClarification = true
		r.ClarifyKey = "ask_due_time"
		return r
	}
	r.Due = Due{Kind: DueResolved, ISO: iso, Confidence: 0.6}
	return r
}

// createTitle strips creation fillers; "ذكرني بالاجتماع" keeps "الاجتماع".
func createTitle(s string) string {
	fields := strings.Fields(s)
	remind := len(fields) > 0 && contains(remindWords, normWord(fields[0]))
	out := stripLead(s, createLead)
	if remind && strings.HasPrefix(temporal.Normalize(out), "بال") {
		out = strings.TrimPrefix(out, "ب")
	}
	return cleanTitle(out)
}
