package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storyline-server/internal/models"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ChapterRepository is CRUD access to chapters keyed by
// (character_id, chapter_number). Listing is always ascending by number;
// uniqueness of the number within a character is enforced by the store.
type ChapterRepository interface {
	ListByCharacter(ctx context.Context, characterID uuid.UUID) ([]models.Chapter, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error)
	GetByNumber(ctx context.Context, characterID uuid.UUID, chapterNumber int) (*models.Chapter, error)
	// Create inserts a chapter. A zero ChapterNumber is assigned
	// max(existing)+1; a supplied number that collides returns
	// models.ErrDuplicateChapterNumber.
	Create(ctx context.Context, chapter *models.Chapter) error
	Update(ctx context.Context, chapter *models.Chapter) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProgressRepository stores per-user, per-character storyline positions.
// Deleting a chapter never cascades here; orphaned positions are repaired by
// the progression engine at read time.
type ProgressRepository interface {
	Get(ctx context.Context, userID, characterID uuid.UUID) (*models.ProgressPosition, error)
	Upsert(ctx context.Context, pos *models.ProgressPosition) error
	Delete(ctx context.Context, userID, characterID uuid.UUID) error
}
