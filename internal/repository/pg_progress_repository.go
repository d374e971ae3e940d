package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storyline-server/internal/models"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ ProgressRepository = (*pgProgressRepository)(nil)

type pgProgressRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgProgressRepository creates a postgres-backed ProgressRepository.
func NewPgProgressRepository(db DBTX, logger *zap.Logger) ProgressRepository {
	return &pgProgressRepository{
		db:     db,
		logger: logger.Named("PgProgressRepo"),
	}
}

const getProgressQuery = `
SELECT user_id, character_id, current_chapter_number, current_branch_id, current_follow_up_index, free_roam_unlocked, updated_at
FROM progress_positions
WHERE user_id = $1 AND character_id = $2`

const upsertProgressQuery = `
INSERT INTO progress_positions (user_id, character_id, current_chapter_number, current_branch_id, current_follow_up_index, free_roam_unlocked, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, character_id) DO UPDATE SET
    current_chapter_number = EXCLUDED.current_chapter_number,
    current_branch_id = EXCLUDED.current_branch_id,
    current_follow_up_index = EXCLUDED.current_follow_up_index,
    free_roam_unlocked = EXCLUDED.free_roam_unlocked,
    updated_at = EXCLUDED.updated_at`

const deleteProgressQuery = `
DELETE FROM progress_positions
WHERE user_id = $1 AND character_id = $2`

func (r *pgProgressRepository) Get(ctx context.Context, userID, characterID uuid.UUID) (*models.ProgressPosition, error) {
	pos := &models.ProgressPosition{}
	logFields := []zap.Field{zap.Stringer("userID", userID), zap.Stringer("characterID", characterID)}

	err := r.db.QueryRow(ctx, getProgressQuery, userID, characterID).Scan(
		&pos.UserID,
		&pos.CharacterID,
		&pos.CurrentChapterNumber,
		&pos.CurrentBranchID,
		&pos.CurrentFollowUpIndex,
		&pos.FreeRoamUnlocked,
		&pos.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get progress position", append(logFields, zap.Error(err))...)
		return nil, err
	}
	return pos, nil
}

func (r *pgProgressRepository) Upsert(ctx context.Context, pos *models.ProgressPosition) error {
	pos.UpdatedAt = time.Now()
	logFields := []zap.Field{
		zap.Stringer("userID", pos.UserID),
		zap.Stringer("characterID", pos.CharacterID),
		zap.Int("chapterNumber", pos.CurrentChapterNumber),
		zap.Bool("freeRoam", pos.FreeRoamUnlocked),
	}

	_, err := r.db.Exec(ctx, upsertProgressQuery,
		pos.UserID,
		pos.CharacterID,
		pos.CurrentChapterNumber,
		pos.CurrentBranchID,
		pos.CurrentFollowUpIndex,
		pos.FreeRoamUnlocked,
		pos.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert progress position", append(logFields, zap.Error(err))...)
		return err
	}

	r.logger.Debug("Upserted progress position", logFields...)
	return nil
}

func (r *pgProgressRepository) Delete(ctx context.Context, userID, characterID uuid.UUID) error {
	logFields := []zap.Field{zap.Stringer("userID", userID), zap.Stringer("characterID", characterID)}

	cmdTag, err := r.db.Exec(ctx, deleteProgressQuery, userID, characterID)
	if err != nil {
		r.logger.Error("Failed to delete progress position", append(logFields, zap.Error(err))...)
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to delete non-existent progress position", logFields...)
	} else {
		r.logger.Info("Deleted progress position", logFields...)
	}
	return nil
}
