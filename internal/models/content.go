package models

import (
	"encoding/json"
)

// ContentDocument is the parsed form of a chapter's content payload.
// Keys that the service does not understand are carried in Extra and
// written back verbatim on serialization, so an edit that does not touch
// them never destroys them.
type ContentDocument struct {
	OpeningMessage string   `json:"opening_message"`
	Branches       []Branch `json:"branches"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Branch is one user-selectable option within a chapter.
type Branch struct {
	ID                   string         `json:"id"`
	Label                string         `json:"label"`
	ResponseMessage      string         `json:"response_message"`
	TextOverride         string         `json:"text_override,omitempty"`
	FollowUp             []FollowUpStep `json:"follow_up,omitempty"`
	Media                []MediaItem    `json:"media,omitempty"`
	NextChapterIncrement *int           `json:"next_chapter_increment,omitempty"`
	UnlocksFreeRoam      bool           `json:"unlocks_free_roam,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Increment returns the branch's chapter increment, defaulting to 1 when
// the author did not set one. Zero is a legal explicit value and only has
// an effect together with UnlocksFreeRoam.
func (b *Branch) Increment() int {
	if b.NextChapterIncrement == nil {
		return 1
	}
	return *b.NextChapterIncrement
}

// FollowUpStep is a fixed continuation after a branch is taken. Follow-ups
// are traversed strictly in array order and are not re-branchable.
type FollowUpStep struct {
	UserPrompt string      `json:"user_prompt"`
	Response   string      `json:"response"`
	Media      []MediaItem `json:"media,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// MediaItem describes one media attachment on a branch or follow-up.
type MediaItem struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	NSFWLevel   int    `json:"nsfw_level,omitempty"`
	Description string `json:"description,omitempty"`
}

var contentKnownKeys = []string{"opening_message", "branches"}

var branchKnownKeys = []string{
	"id", "label", "response_message", "text_override",
	"follow_up", "media", "next_chapter_increment", "unlocks_free_roam",
}

var followUpKnownKeys = []string{"user_prompt", "response", "media"}

func extractExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(m, k)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func mergeExtra(m map[string]json.RawMessage, extra map[string]json.RawMessage) {
	for k, v := range extra {
		m[k] = v
	}
}

// UnmarshalJSON parses a content document, capturing unknown top-level keys.
func (d *ContentDocument) UnmarshalJSON(data []byte) error {
	type alias ContentDocument
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := extractExtra(data, contentKnownKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*d = ContentDocument(a)
	return nil
}

// MarshalJSON writes known fields plus any preserved unknown keys. Branches
// always serializes as an array, never null.
func (d ContentDocument) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(d.Extra)+2)
	mergeExtra(m, d.Extra)

	opening, err := json.Marshal(d.OpeningMessage)
	if err != nil {
		return nil, err
	}
	m["opening_message"] = opening

	branches := d.Branches
	if branches == nil {
		branches = []Branch{}
	}
	rawBranches, err := json.Marshal(branches)
	if err != nil {
		return nil, err
	}
	m["branches"] = rawBranches

	return json.Marshal(m)
}

func (b *Branch) UnmarshalJSON(data []byte) error {
	type alias Branch
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := extractExtra(data, branchKnownKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*b = Branch(a)
	return nil
}

func (b Branch) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(b.Extra)+8)
	mergeExtra(m, b.Extra)

	put := func(key string, v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		m[key] = raw
		return nil
	}

	if err := put("id", b.ID); err != nil {
		return nil, err
	}
	if err := put("label", b.Label); err != nil {
		return nil, err
	}
	if err := put("response_message", b.ResponseMessage); err != nil {
		return nil, err
	}
	if b.TextOverride != "" {
		if err := put("text_override", b.TextOverride); err != nil {
			return nil, err
		}
	}
	if len(b.FollowUp) > 0 {
		if err := put("follow_up", b.FollowUp); err != nil {
			return nil, err
		}
	}
	if len(b.Media) > 0 {
		if err := put("media", b.Media); err != nil {
			return nil, err
		}
	}
	if b.NextChapterIncrement != nil {
		if err := put("next_chapter_increment", *b.NextChapterIncrement); err != nil {
			return nil, err
		}
	}
	if b.UnlocksFreeRoam {
		if err := put("unlocks_free_roam", true); err != nil {
			return nil, err
		}
	}

	return json.Marshal(m)
}

func (f *FollowUpStep) UnmarshalJSON(data []byte) error {
	type alias FollowUpStep
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := extractExtra(data, followUpKnownKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*f = FollowUpStep(a)
	return nil
}

func (f FollowUpStep) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(f.Extra)+3)
	mergeExtra(m, f.Extra)

	raw, err := json.Marshal(f.UserPrompt)
	if err != nil {
		return nil, err
	}
	m["user_prompt"] = raw

	raw, err = json.Marshal(f.Response)
	if err != nil {
		return nil, err
	}
	m["response"] = raw

	if len(f.Media) > 0 {
		raw, err = json.Marshal(f.Media)
		if err != nil {
			return nil, err
		}
		m["media"] = raw
	}

	return json.Marshal(m)
}

// BranchByID returns the branch with the given id, or nil.
func (d *ContentDocument) BranchByID(id string) *Branch {
	for i := range d.Branches {
		if d.Branches[i].ID == id {
			return &d.Branches[i]
		}
	}
	return nil
}
