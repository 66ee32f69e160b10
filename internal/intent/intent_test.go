package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hebron = time.FixedZone("Asia/Hebron", 3*60*60)

func fixedNow() time.Time {
	return time.Date(2026, 10, 15, 7, 30, 0, 0, time.UTC) // 10:30 in hebron
}

func extract(t *testing.T, msg string) Result {
	t.Helper()
	return NewRuleExtractor(fixedNow).Extract(msg, hebron)
}

func TestExtract_PriorityTable(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"احذف اشتري حليب", DeleteTask},
		{"امسحها", DeleteTask},
		{"الغي مهمة الاجتماع", DeleteTask},
		{"delete the report", DeleteTask},
		{"بدي احذف مهمة الدراسة", DeleteTask},
		{"شو مهامي", ListTasks},
		{"شو عندي اليوم", ListTasks},
		{"خلصت مهمة التقرير", CompleteTask},
		{"غير اسم الاجتماع الى اجتماع العميل", UpdateTask},
		{"اجل الاجتماع لبكرة", UpdateTask},
		{"ذكرني اشتري خبز", CreateTask},
		{"دراسة لمدة ساعتين", CreateTask},
		{"اجتماع بكرة الساعة 5", CreateTask},
		{"مرحبا", Chat},
		{"اشتري حليب", Chat},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, extract(t, tt.msg).Intent)
		})
	}
}

func TestExtract_DeleteNotConfusedWithFood(t *testing.T) {
	// "الغدا" shares a prefix with the cancel verb
	assert.NotEqual(t, DeleteTask, extract(t, "ضيف مهمة تحضير الغدا").Intent)
}

func TestExtract_DeleteWithHint(t *testing.T) {
	r := extract(t, "احذف اشتري حليب")
	assert.Equal(t, "اشتري حليب", r.TitleQuery)
	assert.True(t, r.NeedsConfirmation)
	assert.Contains(t, r.ConfirmMessage, "اشتري حليب")
	assert.False(t, r.NeedsClarification)
	assert.Equal(t, 0.62, r.Confidence)
}

func TestExtract_DeleteWithoutHint(t *testing.T) {
	r := extract(t, "احذف مهمة")
	assert.Empty(t, r.TitleQuery)
	assert.True(t, r.NeedsClarification)
	assert.Equal(t, "ask_delete_query", r.ClarifyKey)
	assert.False(t, r.NeedsConfirmation)
}

func TestExtract_ListFilters(t *testing.T) {
	r := extract(t, "شو مهامي اليوم")
	assert.Equal(t, "todo", r.Status)
	assert.Equal(t, "today", r.Scope)

	r = extract(t, "اعرض المهام المنجزة")
	assert.Equal(t, "done", r.Status)
	assert.Equal(t, "all", r.Scope)

	r = extract(t, "كل المهام")
	assert.Equal(t, "all", r.Status)
}

func TestExtract_CreateWithDurationAndDue(t *testing.T) {
	r := extract(t, "ضيف مهمة مراجعة التقرير بكرة الساعة 6 مساءً لمدة ساعتين")
	require.Equal(t, CreateTask, r.Intent)
	assert.Equal(t, "مراجعة التقرير", r.Title)
	assert.Equal(t, 120, r.DurationMinutes)
	assert.Equal(t, DueResolved, r.Due.Kind)

	due, ok := r.Due.Time()
	require.True(t, ok)
	assert.True(t, due.Equal(time.Date(2026, 10, 16, 18, 0, 0, 0, hebron)))
	assert.False(t, r.NeedsClarification)
}

func TestExtract_CreateDayWithoutTimeAsksForTime(t *testing.T) {
	r := extract(t, "ذكرني بالاجتماع بكرة")
	require.Equal(t, CreateTask, r.Intent)
	assert.Equal(t, "الاجتماع", r.Title)
	assert.Equal(t, DueMissing, r.Due.Kind)
	assert.True(t, r.NeedsClarification)
	assert.Equal(t, "ask_due_time", r.ClarifyKey)

	day, ok := r.Due.Time()
	require.True(t, ok)
	assert.Equal(t, 16, day.In(hebron).Day())
}

func TestExtract_CreateWithoutTemporal(t *testing.T) {
	r := extract(t, "ذكرني اشتري خبز")
	assert.Equal(t, "اشتري خبز", r.Title)
	assert.Equal(t, DueNone, r.Due.Kind)
	assert.False(t, r.NeedsClarification)
	assert.Equal(t, 0.45, r.Confidence)
}

func TestExtract_RelativeOffsetIsDueNotDuration(t *testing.T) {
	r := extract(t, "موعد الطبيب بعد أسبوع")
	require.Equal(t, CreateTask, r.Intent)
	assert.Zero(t, r.DurationMinutes)
	assert.Equal(t, DueResolved, r.Due.Kind)
	assert.Equal(t, "الطبيب", r.Title)
}

func TestExtract_TitleCappedAt60(t *testing.T) {
	long := "ضيف مهمة "
	for i := 0; i < 20; i++ {
		long += "كلمة "
	}
	r := extract(t, long)
	assert.LessOrEqual(t, len([]rune(r.Title)), MaxTitleLen)
}

func TestExtract_Complete(t *testing.T) {
	r := extract(t, "خلصت مهمة التقرير")
	assert.Equal(t, "التقرير", r.TitleQuery)

	r = extract(t, "خلصت")
	assert.True(t, r.NeedsClarification)
	assert.Equal(t, "ask_complete_query", r.ClarifyKey)
}

func TestExtract_UpdateRename(t *testing.T) {
	r := extract(t, "غير اسم مهمة الاجتماع الى اجتماع العميل")
	assert.Equal(t, "الاجتماع", r.TitleQuery)
	assert.Equal(t, "اجتماع العميل", r.NewTitle)
	assert.False(t, r.NeedsClarification)

	e := r.Entities()
	assert.Equal(t, "الاجتماع", e.LookupQuery())
	require.NotNil(t, e.Patch)
	require.NotNil(t, e.Patch.Title)
	assert.Equal(t, "اجتماع العميل", *e.Patch.Title)
}

func TestExtract_UpdatePostpone(t *testing.T) {
	r := extract(t, "اجل الاجتماع لبكرة")
	assert.Equal(t, "الاجتماع", r.TitleQuery)
	assert.Equal(t, DueResolved, r.Due.Kind)
	e := r.Entities()
	require.NotNil(t, e.Patch.DueAt)
	assert.Nil(t, e.Patch.Title)
}

func TestNormalize_Invariants(t *testing.T) {
	r := Result{Intent: "bogus", Due: Due{Kind: DueResolved}, Confidence: 3}
	r.Normalize()
	assert.Equal(t, Chat, r.Intent)
	assert.Equal(t, DueMissing, r.Due.Kind)
	assert.Equal(t, 1.0, r.Confidence)

	r = Result{Intent: CreateTask, NeedsClarification: true}
	r.Normalize()
	assert.Equal(t, "clarify", r.ClarifyKey)

	r = Result{Intent: Clarify, ClarifyQuestion: "شو اسم المهمة؟"}
	r.Normalize()
	assert.True(t, r.NeedsClarification)
	assert.Empty(t, r.ClarifyKey)

	r = Result{Intent: ListTasks, Due: Due{Kind: "weird", ISO: "x"}}
	r.Normalize()
	assert.Equal(t, DueNone, r.Due.Kind)
	assert.Empty(t, r.Due.ISO)
}

func TestEntities_LookupNeverUsesPatchTitle(t *testing.T) {
	newTitle := "اجتماع (محدث)"
	e := Entities{Title: "اجتماع", Patch: &Patch{Title: &newTitle}}
	assert.Empty(t, e.LookupQuery())

	e.TaskRef = &TaskRef{Title: "اجتماع"}
	assert.Equal(t, "اجتماع", e.LookupQuery())

	e.TaskTitle = "الفريق"
	assert.Equal(t, "الفريق", e.LookupQuery())
}

func TestEntities_ModelTitleIsNewValueForUpdate(t *testing.T) {
	r := Result{Intent: UpdateTask, TitleQuery: "اجتماع", Title: "اجتماع العميل"}
	e := r.Entities()
	assert.Equal(t, "اجتماع", e.LookupQuery())
	require.NotNil(t, e.Patch.Title)
	assert.Equal(t, "اجتماع العميل", *e.Patch.Title)
}
