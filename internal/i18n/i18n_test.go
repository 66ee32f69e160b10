package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Dialects(t *testing.T) {
	assert.Equal(t, "تمام، لغيت الطلب.", Render("pal", "cancelled", nil))
	assert.Equal(t, "رد بأيوه أو لأ.", Render("egy", "confirm_yes_no", nil))
	assert.Equal(t, "ما عندك مهام الحين.", Render("khg", "tasks_empty", nil))
}

func TestRender_Params(t *testing.T) {
	got := Render("pal", "delete_confirm", map[string]string{"title": "اشتري حليب"})
	assert.Equal(t, "بدك أحذف \"اشتري حليب\"؟ (نعم/لا)", got)
}

func TestRender_Fallbacks(t *testing.T) {
	assert.Equal(t, Render("pal", "cancelled", nil), Render("xx", "cancelled", nil), "unknown dialect uses pal")
	assert.Equal(t, "no_such_key", Render("egy", "no_such_key", nil), "unknown key is returned as is")
}

func TestRender_MissingKeyFallsBackToDefaultDialect(t *testing.T) {
	c, err := Parse([]byte("pal:\n  hi: \"مرحبا\"\negy:\n  bye: \"سلام\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "مرحبا", c.Render("egy", "hi", nil))
	assert.Equal(t, "سلام", c.Render("egy", "bye", nil))
}

func TestParse_RequiresDefaultDialect(t *testing.T) {
	_, err := Parse([]byte("egy:\n  hi: x\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("pal: [1, 2"))
	assert.Error(t, err)
}

func TestEmbeddedCatalog_DialectsShareKeys(t *testing.T) {
	c := Default()
	for key := range c.messages[DefaultDialect] {
		for _, d := range Dialects {
			_, ok := c.messages[d][key]
			assert.True(t, ok, "%s is missing %s", d, key)
		}
	}
	for _, key := range []string{"ERR_INVALID_REQUEST", "ERR_UNAUTHORIZED", "ERR_INTERNAL", "ask_due_time", "ask_delete_query", "ask_update_patch", "clarify"} {
		assert.True(t, c.Has(key), key)
	}
}

func TestValidDialect(t *testing.T) {
	assert.True(t, ValidDialect("khg"))
	assert.False(t, ValidDialect("msa"))
}
