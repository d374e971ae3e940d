package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline-server/internal/schema"
)

func TestValidateHardFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not JSON at all", `{"opening_message": "hi", "branches": }`},
		{"top-level array", `[{"opening_message": "hi"}]`},
		{"top-level string", `"just text"`},
		{"top-level null", `null`},
		{"missing opening_message", `{"branches": []}`},
		{"opening_message not a string", `{"opening_message": 42, "branches": []}`},
		{"branches not an array", `{"opening_message": "hi", "branches": {"a": 1}}`},
		{"branch element not an object", `{"opening_message": "hi", "branches": ["oops"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := schema.Validate([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, res)

			var validationErr *schema.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.NotEmpty(t, validationErr.Issues)
		})
	}
}

func TestValidateAcceptsDraftsWithWarnings(t *testing.T) {
	raw := `{
		"opening_message": "Welcome.",
		"branches": [
			{"id": "b1", "label": "", "response_message": ""},
			{"id": "b1", "label": "Go on", "response_message": "Sure.", "next_chapter_increment": 0}
		]
	}`

	res, err := schema.Validate([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, res.Doc)

	paths := make([]string, len(res.Warnings))
	for i, w := range res.Warnings {
		paths[i] = w.Path
	}
	assert.Contains(t, paths, "branches[0].label")
	assert.Contains(t, paths, "branches[0].response_message")
	assert.Contains(t, paths, "branches[1].id") // duplicate id
	assert.Contains(t, paths, "branches[1].next_chapter_increment")
}

func TestValidateMinimalDocument(t *testing.T) {
	// Empty opening message and no branches key at all are both legal.
	res, err := schema.Validate([]byte(`{"opening_message": ""}`))
	require.NoError(t, err)
	assert.Equal(t, "", res.Doc.OpeningMessage)
	assert.Empty(t, res.Doc.Branches)
	assert.Empty(t, res.Warnings)
}

func TestRoundTripIdempotence(t *testing.T) {
	raw := `{
		"opening_message": "Hello there.",
		"branches": [
			{
				"id": "b1",
				"label": "Enthusiastic",
				"response_message": "Great!",
				"text_override": "yes please",
				"mood_hint": "excited",
				"follow_up": [
					{"user_prompt": "and then?", "response": "And then...", "beat": 3}
				],
				"media": [{"type": "image", "url": "https://cdn.example/a.png", "nsfw_level": 1}]
			}
		],
		"editor_notes": {"draft": true, "revision": 7},
		"unlock_price": 1e2
	}`

	first, err := schema.Parse([]byte(raw))
	require.NoError(t, err)

	out, err := schema.Serialize(first)
	require.NoError(t, err)

	second, err := schema.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, first.OpeningMessage, second.OpeningMessage)
	assert.Equal(t, first.Branches[0].ID, second.Branches[0].ID)

	// One round trip canonicalizes; from then on output is stable.
	out2, err := schema.Serialize(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(out), string(out2))

	third, err := schema.Parse(out2)
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestUnknownKeysSurviveSerialization(t *testing.T) {
	raw := `{"opening_message": "hi", "branches": [], "custom_flag": {"nested": [1, 2, 3]}}`

	doc, err := schema.Parse([]byte(raw))
	require.NoError(t, err)

	out, err := schema.Serialize(doc)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	assert.JSONEq(t, `{"nested":[1,2,3]}`, string(m["custom_flag"]))
}

func TestBranchUnknownKeysSurvive(t *testing.T) {
	raw := `{"opening_message": "hi", "branches": [{"id": "x", "label": "A", "response_message": "B", "internal_tag": "keep-me"}]}`

	doc, err := schema.Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Branches, 1)
	require.Contains(t, doc.Branches[0].Extra, "internal_tag")

	out, err := schema.Serialize(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "keep-me")
}
