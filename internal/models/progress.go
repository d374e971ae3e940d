package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgressPosition is the per-user, per-character pointer into the storyline
// state machine. It is read and written only through the progression service;
// the engine itself treats it as a value.
type ProgressPosition struct {
	UserID               uuid.UUID `db:"user_id" json:"userId"`
	CharacterID          uuid.UUID `db:"character_id" json:"characterId"`
	CurrentChapterNumber int       `db:"current_chapter_number" json:"currentChapterNumber"`
	CurrentBranchID      *string   `db:"current_branch_id" json:"currentBranchId,omitempty"`
	CurrentFollowUpIndex *int      `db:"current_follow_up_index" json:"currentFollowUpIndex,omitempty"`
	FreeRoamUnlocked     bool      `db:"free_roam_unlocked" json:"freeRoamUnlocked"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}

// NewProgressPosition returns a fresh position for a user's first interaction
// with a character's storyline. The caller supplies the lowest existing
// chapter number (or zero when no chapters exist yet; the engine repairs it).
func NewProgressPosition(userID, characterID uuid.UUID, chapterNumber int) ProgressPosition {
	return ProgressPosition{
		UserID:               userID,
		CharacterID:          characterID,
		CurrentChapterNumber: chapterNumber,
	}
}

// ClearBranchState drops any branch/follow-up traversal state.
func (p *ProgressPosition) ClearBranchState() {
	p.CurrentBranchID = nil
	p.CurrentFollowUpIndex = nil
}
