package llm

import (
	"fmt"
	"time"

	"google.golang.org/genai"
)

const systemPrompt = `أنت محلل نوايا لتطبيق مهام.
أعد JSON فقط مطابقاً للمخطط بدون أي نص زائد.

قواعد:
- عبارات المدة (لمدة/مدة/مدتها/مدته/على مدار/خلال) تتحول إلى duration_minutes فقط ولا تعتبر موعداً.
- عبارات الموعد (اليوم، بكرة، بعد ساعتين، بعد أسبوع، الساعة 6...) تخص due فقط.
- "بعد أسبوع" موعد نسبي (due) وليس مدة. "لمدة أسبوع" مدة فقط.
- إذا لم يذكر وقت إطلاقاً: due.kind="none" ولا تطلب توضيحاً.
- إذا ذكر يوماً بلا وقت واضح: due.kind="missing" و needsClarification=true مع سؤال واحد قصير.
- due.iso بصيغة RFC3339 مع إزاحة المنطقة الزمنية المعطاة.
- مع أفعال الحذف (احذف/شيل/امسح/حذف/الغِ) intent="delete_task" و titleQuery هو وصف المهمة، ولا تعد create_task أبداً.
- مع أفعال الإنجاز (خلصت/أنجزت) intent="complete_task" و titleQuery هو وصف المهمة.
- في update_task: titleQuery يحدد المهمة الموجودة و newTitle هو العنوان الجديد؛ لا تخلط بينهما.
- لطلب عرض المهام: status من todo/done/all و scope من all/today.
- لا تدخل المدة أو الموعد في العنوان؛ اجعل العنوان مختصراً وواضحاً (60 حرفاً كحد أقصى) بلا أوامر.`

func userPrompt(message string, loc *time.Location, now time.Time) string {
	return fmt.Sprintf("tz=%s\nnow=%s\nmessage: %s", loc.String(), now.In(loc).Format(time.RFC3339), message)
}

func responseSchema() *genai.Schema {
	str := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString, Nullable: genai.Ptr(true)} }
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"intent": {
				Type: genai.TypeString,
				Enum: []string{"create_task", "list_tasks", "update_task", "delete_task", "complete_task", "chat"},
			},
			"title": str(),
			"due": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"kind":       {Type: genai.TypeString, Enum: []string{"resolved", "missing", "none"}},
					"iso":        str(),
					"confidence": {Type: genai.TypeNumber},
				},
				Required: []string{"kind", "confidence"},
			},
			"duration_minutes":   {Type: genai.TypeNumber, Nullable: genai.Ptr(true)},
			"needsClarification": {Type: genai.TypeBoolean},
			"clarifyQuestion":    str(),
			"titleQuery":         str(),
			"taskId":             str(),
			"needsConfirmation":  {Type: genai.TypeBoolean},
			"confirmMessage":     str(),
			"confidence":         {Type: genai.TypeNumber},
			"status":             {Type: genai.TypeString, Enum: []string{"todo", "done", "all"}, Nullable: genai.Ptr(true)},
			"scope":              {Type: genai.TypeString, Enum: []string{"all", "today"}, Nullable: genai.Ptr(true)},
			"newTitle":           str(),
		},
		Required: []string{"intent", "needsClarification", "needsConfirmation", "confidence"},
	}
}
