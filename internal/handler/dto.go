package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"storyline-server/internal/freeroam"
	"storyline-server/internal/models"
)

// APIError is the standardized error response body.
type APIError struct {
	Message string `json:"message"`
}

// ChapterResponse is the operator-facing view of a chapter.
type ChapterResponse struct {
	ID            uuid.UUID       `json:"id"`
	CharacterID   uuid.UUID       `json:"characterId"`
	ChapterNumber int             `json:"chapterNumber"`
	Title         string          `json:"title"`
	Tone          string          `json:"tone"`
	Description   string          `json:"description"`
	Content       json.RawMessage `json:"content"`
	SystemPrompt  string          `json:"systemPrompt"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toChapterResponse(c *models.Chapter) ChapterResponse {
	return ChapterResponse{
		ID:            c.ID,
		CharacterID:   c.CharacterID,
		ChapterNumber: c.ChapterNumber,
		Title:         c.Title,
		Tone:          c.Tone,
		Description:   c.Description,
		Content:       c.Content,
		SystemPrompt:  c.SystemPrompt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// TurnRequest is one user turn against a character's storyline. ChoiceID is
// the id of the pressed branch button and takes precedence over Text.
type TurnRequest struct {
	UserID   uuid.UUID          `json:"userId" binding:"required"`
	ChoiceID string             `json:"choiceId"`
	Text     string             `json:"text"`
	History  []freeroam.Message `json:"history,omitempty"`
}

// OpenSessionRequest starts a dual-representation editing session.
type OpenSessionRequest struct {
	ChapterID uuid.UUID `json:"chapterId" binding:"required"`
}

// OpenSessionResponse returns the session handle plus its initial state.
type OpenSessionResponse struct {
	SessionID uuid.UUID   `json:"sessionId"`
	State     interface{} `json:"state"`
}

// RawEditRequest replaces the raw text buffer of a session.
type RawEditRequest struct {
	Text string `json:"text"`
}

// VisualEditRequest applies one structured-form field change.
type VisualEditRequest struct {
	Path  string          `json:"path" binding:"required"`
	Value json.RawMessage `json:"value"`
}
