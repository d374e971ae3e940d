package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Chapter is one numbered scripted unit of a character's storyline.
// Chapters are ordered by ChapterNumber ascending; numbers are unique per
// character but not necessarily contiguous.
type Chapter struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	CharacterID   uuid.UUID       `db:"character_id" json:"characterId"`
	ChapterNumber int             `db:"chapter_number" json:"chapterNumber"`
	Title         string          `db:"title" json:"title"`
	Tone          string          `db:"tone" json:"tone"`
	Description   string          `db:"description" json:"description"`
	Content       json.RawMessage `db:"content" json:"content"`
	SystemPrompt  string          `db:"system_prompt" json:"systemPrompt"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// DefaultContent is the content document assigned to a chapter created
// without an explicit content payload.
func DefaultContent() json.RawMessage {
	return json.RawMessage(`{"opening_message":"","branches":[]}`)
}
