package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"storyline-server/internal/models"
)

// Mock ChapterRepository
type ChapterRepository struct {
	mock.Mock
}

func (m *ChapterRepository) ListByCharacter(ctx context.Context, characterID uuid.UUID) ([]models.Chapter, error) {
	args := m.Called(ctx, characterID)
	chapters, _ := args.Get(0).([]models.Chapter)
	return chapters, args.Error(1)
}
func (m *ChapterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	args := m.Called(ctx, id)
	chapter, _ := args.Get(0).(*models.Chapter)
	return chapter, args.Error(1)
}
func (m *ChapterRepository) GetByNumber(ctx context.Context, characterID uuid.UUID, chapterNumber int) (*models.Chapter, error) {
	args := m.Called(ctx, characterID, chapterNumber)
	chapter, _ := args.Get(0).(*models.Chapter)
	return chapter, args.Error(1)
}
func (m *ChapterRepository) Create(ctx context.Context, chapter *models.Chapter) error {
	args := m.Called(ctx, chapter)
	return args.Error(0)
}
func (m *ChapterRepository) Update(ctx context.Context, chapter *models.Chapter) error {
	args := m.Called(ctx, chapter)
	return args.Error(0)
}
func (m *ChapterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Mock ProgressRepository
type ProgressRepository struct {
	mock.Mock
}

func (m *ProgressRepository) Get(ctx context.Context, userID, characterID uuid.UUID) (*models.ProgressPosition, error) {
	args := m.Called(ctx, userID, characterID)
	pos, _ := args.Get(0).(*models.ProgressPosition)
	return pos, args.Error(1)
}
func (m *ProgressRepository) Upsert(ctx context.Context, pos *models.ProgressPosition) error {
	args := m.Called(ctx, pos)
	return args.Error(0)
}
func (m *ProgressRepository) Delete(ctx context.Context, userID, characterID uuid.UUID) error {
	args := m.Called(ctx, userID, characterID)
	return args.Error(0)
}
