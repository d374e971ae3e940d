package editor_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyline-server/internal/editor"
	"storyline-server/internal/models"
)

const sampleContent = `{
	"opening_message": "Welcome to chapter one.",
	"branches": [
		{
			"id": "warm", "label": "Be friendly", "response_message": "Glad you came.",
			"mood_hint": "soft",
			"follow_up": [{"user_prompt": "go on", "response": "There is more."}]
		},
		{"id": "cold", "label": "Keep distance", "response_message": "Suit yourself."}
	],
	"editor_notes": "do not ship yet"
}`

func newController(t *testing.T, content string) *editor.Controller {
	t.Helper()
	c := editor.NewController(json.RawMessage(content), zap.NewNop())
	require.False(t, c.Snapshot().Blocked)
	return c
}

func TestVisualEditUpdatesRawText(t *testing.T) {
	c := newController(t, sampleContent)

	require.NoError(t, c.OnVisualEdit("opening_message", "A new opening."))

	st := c.Snapshot()
	assert.Contains(t, st.RawText, "A new opening.")

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(st.RawText), &m))
	assert.JSONEq(t, `"A new opening."`, string(m["opening_message"]))
}

func TestVisualEditNestedPaths(t *testing.T) {
	c := newController(t, sampleContent)

	require.NoError(t, c.OnVisualEdit("branches.1.label", "Stay away"))
	require.NoError(t, c.OnVisualEdit("branches.0.follow_up.0.response", "So much more."))

	raw, err := c.Content()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Stay away")
	assert.Contains(t, string(raw), "So much more.")
	// Sibling fields stay intact.
	assert.Contains(t, string(raw), "Suit yourself.")
}

func TestVisualEditAppendAndRemove(t *testing.T) {
	c := newController(t, sampleContent)

	require.NoError(t, c.OnVisualEdit("branches.-", map[string]interface{}{
		"id": "third", "label": "Something else", "response_message": "Interesting.",
	}))
	require.NoError(t, c.OnVisualEdit("branches.0", nil))

	raw, err := c.Content()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Glad you came.")
	assert.Contains(t, string(raw), "Interesting.")
	assert.Contains(t, string(raw), "Suit yourself.")
}

func TestVisualEditRejectsBadPaths(t *testing.T) {
	c := newController(t, sampleContent)

	for _, path := range []string{"branches.7.label", "branches.x", "opening_message.nope"} {
		err := c.OnVisualEdit(path, "v")
		assert.ErrorIs(t, err, models.ErrInvalidInput, path)
	}
}

func TestVisualEditTypeMismatchLeavesDocumentUntouched(t *testing.T) {
	c := newController(t, sampleContent)
	before := c.Snapshot().RawText

	err := c.OnVisualEdit("branches.0.next_chapter_increment", "not a number")
	require.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, before, c.Snapshot().RawText)
}

func TestUnknownKeysSurviveVisualEdits(t *testing.T) {
	c := newController(t, sampleContent)

	require.NoError(t, c.OnVisualEdit("opening_message", "Edited."))
	require.NoError(t, c.OnVisualEdit("branches.0.label", "Renamed"))

	raw, err := c.Content()
	require.NoError(t, err)
	// Document-level and branch-level pass-through keys.
	assert.Contains(t, string(raw), "do not ship yet")
	assert.Contains(t, string(raw), `"mood_hint"`)
}

func TestRawEditReplacesDocument(t *testing.T) {
	c := newController(t, sampleContent)

	c.OnRawEdit(`{"opening_message": "Rewritten from scratch.", "branches": []}`)

	st := c.Snapshot()
	assert.False(t, st.Blocked)

	raw, err := c.Content()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Rewritten from scratch.")
	assert.NotContains(t, string(raw), "Glad you came.")
}

func TestInvalidRawEditBlocksVisualEditing(t *testing.T) {
	c := newController(t, sampleContent)

	bad := `{"opening_message": "hi", "branches": }`
	c.OnRawEdit(bad)

	st := c.Snapshot()
	assert.True(t, st.Blocked)
	// The operator's text is preserved exactly as typed.
	assert.Equal(t, bad, st.RawText)

	err := c.OnVisualEdit("opening_message", "nope")
	assert.ErrorIs(t, err, models.ErrDocumentBlocked)

	_, err = c.Content()
	assert.ErrorIs(t, err, models.ErrDocumentBlocked)

	// A corrected raw edit unblocks the session.
	c.OnRawEdit(`{"opening_message": "hi", "branches": []}`)
	assert.False(t, c.Snapshot().Blocked)
	assert.NoError(t, c.OnVisualEdit("opening_message", "works again"))
}

func TestControllerOpensBlockedOnCorruptContent(t *testing.T) {
	c := editor.NewController(json.RawMessage(`[1, 2, 3]`), zap.NewNop())

	st := c.Snapshot()
	assert.True(t, st.Blocked)
	assert.Equal(t, "[1, 2, 3]", st.RawText)

	_, err := c.Content()
	assert.ErrorIs(t, err, models.ErrDocumentBlocked)
}

func TestWarningsRefreshAfterEdits(t *testing.T) {
	c := newController(t, sampleContent)
	assert.Empty(t, c.Snapshot().Warnings)

	require.NoError(t, c.OnVisualEdit("branches.0.label", ""))

	warnings := c.Snapshot().Warnings
	require.NotEmpty(t, warnings)
	assert.Equal(t, "branches[0].label", warnings[0].Path)
}

func TestRepeatedSaveIsStable(t *testing.T) {
	c := newController(t, sampleContent)

	first, err := c.Content()
	require.NoError(t, err)
	second, err := c.Content()
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}
