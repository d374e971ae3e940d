package repository

import (
	"context"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"storyline-server/internal/models"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ ChapterRepository = (*pgChapterRepository)(nil)

type pgChapterRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgChapterRepository creates a postgres-backed ChapterRepository.
func NewPgChapterRepository(db DBTX, logger *zap.Logger) ChapterRepository {
	return &pgChapterRepository{
		db:     db,
		logger: logger.Named("PgChapterRepo"),
	}
}

const listChaptersQuery = `
SELECT id, character_id, chapter_number, title, tone, description, content, system_prompt, created_at, updated_at
FROM chapters
WHERE character_id = $1
ORDER BY chapter_number ASC`

const getChapterByIDQuery = `
SELECT id, character_id, chapter_number, title, tone, description, content, system_prompt, created_at, updated_at
FROM chapters
WHERE id = $1`

const getChapterByNumberQuery = `
SELECT id, character_id, chapter_number, title, tone, description, content, system_prompt, created_at, updated_at
FROM chapters
WHERE character_id = $1 AND chapter_number = $2`

// next_chapter subquery assigns max(existing)+1 when the caller passed 0.
const createChapterQuery = `
INSERT INTO chapters (id, character_id, chapter_number, title, tone, description, content, system_prompt, created_at, updated_at)
VALUES ($1, $2,
        CASE WHEN $3 > 0 THEN $3
             ELSE COALESCE((SELECT MAX(chapter_number) FROM chapters WHERE character_id = $2), 0) + 1
        END,
        $4, $5, $6, $7, $8, $9, $9)
RETURNING chapter_number`

const updateChapterQuery = `
UPDATE chapters
SET chapter_number = $2, title = $3, tone = $4, description = $5, content = $6, system_prompt = $7, updated_at = $8
WHERE id = $1`

const deleteChapterQuery = `
DELETE FROM chapters
WHERE id = $1`

// uniqueViolation is the postgres error code for a unique constraint breach;
// on (character_id, chapter_number) it means the operator picked a taken
// number and must re-enter it, never that we silently renumber.
const uniqueViolation = "23505"

func isDuplicateNumber(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *pgChapterRepository) ListByCharacter(ctx context.Context, characterID uuid.UUID) ([]models.Chapter, error) {
	var chapters []models.Chapter
	if err := pgxscan.Select(ctx, r.db, &chapters, listChaptersQuery, characterID); err != nil {
		r.logger.Error("Failed to list chapters", zap.Stringer("characterID", characterID), zap.Error(err))
		return nil, err
	}
	return chapters, nil
}

func (r *pgChapterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	var chapter models.Chapter
	if err := pgxscan.Get(ctx, r.db, &chapter, getChapterByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get chapter", zap.Stringer("chapterID", id), zap.Error(err))
		return nil, err
	}
	return &chapter, nil
}

func (r *pgChapterRepository) GetByNumber(ctx context.Context, characterID uuid.UUID, chapterNumber int) (*models.Chapter, error) {
	var chapter models.Chapter
	if err := pgxscan.Get(ctx, r.db, &chapter, getChapterByNumberQuery, characterID, chapterNumber); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get chapter by number",
			zap.Stringer("characterID", characterID),
			zap.Int("chapterNumber", chapterNumber),
			zap.Error(err))
		return nil, err
	}
	return &chapter, nil
}

func (r *pgChapterRepository) Create(ctx context.Context, chapter *models.Chapter) error {
	if chapter.ID == uuid.Nil {
		chapter.ID = uuid.New()
	}
	if len(chapter.Content) == 0 {
		chapter.Content = models.DefaultContent()
	}
	now := time.Now()
	chapter.CreatedAt = now
	chapter.UpdatedAt = now

	err := r.db.QueryRow(ctx, createChapterQuery,
		chapter.ID,
		chapter.CharacterID,
		chapter.ChapterNumber,
		chapter.Title,
		chapter.Tone,
		chapter.Description,
		chapter.Content,
		chapter.SystemPrompt,
		now,
	).Scan(&chapter.ChapterNumber)
	if err != nil {
		if isDuplicateNumber(err) {
			return models.ErrDuplicateChapterNumber
		}
		r.logger.Error("Failed to create chapter",
			zap.Stringer("characterID", chapter.CharacterID),
			zap.Int("chapterNumber", chapter.ChapterNumber),
			zap.Error(err))
		return err
	}

	r.logger.Debug("Created chapter",
		zap.Stringer("chapterID", chapter.ID),
		zap.Stringer("characterID", chapter.CharacterID),
		zap.Int("chapterNumber", chapter.ChapterNumber))
	return nil
}

func (r *pgChapterRepository) Update(ctx context.Context, chapter *models.Chapter) error {
	chapter.UpdatedAt = time.Now()

	cmdTag, err := r.db.Exec(ctx, updateChapterQuery,
		chapter.ID,
		chapter.ChapterNumber,
		chapter.Title,
		chapter.Tone,
		chapter.Description,
		chapter.Content,
		chapter.SystemPrompt,
		chapter.UpdatedAt,
	)
	if err != nil {
		if isDuplicateNumber(err) {
			return models.ErrDuplicateChapterNumber
		}
		r.logger.Error("Failed to update chapter", zap.Stringer("chapterID", chapter.ID), zap.Error(err))
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgChapterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, deleteChapterQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete chapter", zap.Stringer("chapterID", id), zap.Error(err))
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Deleted chapter", zap.Stringer("chapterID", id))
	return nil
}
