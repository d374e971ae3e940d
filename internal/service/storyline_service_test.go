package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyline-server/internal/engine"
	"storyline-server/internal/freeroam"
	"storyline-server/internal/models"
	"storyline-server/internal/repository/mocks"
)

type noopLocker struct{}

func (noopLocker) Acquire(ctx context.Context, userID, characterID uuid.UUID) (func(), error) {
	return func() {}, nil
}

type fakeGenerator struct {
	lastPrompt  string
	lastHistory []freeroam.Message
	reply       string
	err         error
}

func (f *fakeGenerator) GenerateReply(ctx context.Context, personaContext string, history []freeroam.Message, userText string) (string, error) {
	f.lastPrompt = personaContext
	f.lastHistory = history
	return f.reply, f.err
}

func newTestService(chapterRepo *mocks.ChapterRepository, progressRepo *mocks.ProgressRepository, gen *fakeGenerator) StorylineService {
	logger := zap.NewNop()
	bridge := freeroam.NewBridge(gen, nil, 0, logger)
	return NewStorylineService(chapterRepo, progressRepo, engine.New(logger), bridge, noopLocker{}, logger)
}

func storyChapter(characterID uuid.UUID, number int, systemPrompt, content string) models.Chapter {
	return models.Chapter{
		ID:            uuid.New(),
		CharacterID:   characterID,
		ChapterNumber: number,
		SystemPrompt:  systemPrompt,
		Content:       json.RawMessage(content),
	}
}

func TestAdvanceTurnFirstInteraction(t *testing.T) {
	userID := uuid.New()
	characterID := uuid.New()
	chapters := []models.Chapter{
		storyChapter(characterID, 1, "", `{"opening_message": "Hello, traveler.", "branches": []}`),
	}

	chapterRepo := new(mocks.ChapterRepository)
	progressRepo := new(mocks.ProgressRepository)
	chapterRepo.On("ListByCharacter", mock.Anything, characterID).Return(chapters, nil)
	progressRepo.On("Get", mock.Anything, userID, characterID).Return(nil, models.ErrNotFound)
	progressRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(pos *models.ProgressPosition) bool {
		return pos.CurrentChapterNumber == 1 && !pos.FreeRoamUnlocked
	})).Return(nil)

	svc := newTestService(chapterRepo, progressRepo, &fakeGenerator{})
	res, err := svc.AdvanceTurn(context.Background(), userID, characterID, engine.Input{}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ReplyOpening, res.Reply.Kind)
	assert.Equal(t, "Hello, traveler.", res.Reply.Text)
	progressRepo.AssertExpectations(t)
}

func TestAdvanceTurnPersistsNewPosition(t *testing.T) {
	userID := uuid.New()
	characterID := uuid.New()
	chapters := []models.Chapter{
		storyChapter(characterID, 1, "", `{
			"opening_message": "Pick.",
			"branches": [{"id": "go", "label": "Go", "response_message": "Going.", "next_chapter_increment": 1}]
		}`),
		storyChapter(characterID, 2, "", `{"opening_message": "Two.", "branches": []}`),
	}
	stored := models.NewProgressPosition(userID, characterID, 1)

	chapterRepo := new(mocks.ChapterRepository)
	progressRepo := new(mocks.ProgressRepository)
	chapterRepo.On("ListByCharacter", mock.Anything, characterID).Return(chapters, nil)
	progressRepo.On("Get", mock.Anything, userID, characterID).Return(&stored, nil)
	progressRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(pos *models.ProgressPosition) bool {
		return pos.CurrentChapterNumber == 2
	})).Return(nil)

	svc := newTestService(chapterRepo, progressRepo, &fakeGenerator{})
	res, err := svc.AdvanceTurn(context.Background(), userID, characterID, engine.Input{ChoiceID: "go"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Going.", res.Reply.Text)
	assert.Equal(t, 2, res.Position.CurrentChapterNumber)
	progressRepo.AssertExpectations(t)
}

func TestAdvanceTurnFreeRoamUsesResidualPrompt(t *testing.T) {
	userID := uuid.New()
	characterID := uuid.New()
	chapters := []models.Chapter{
		storyChapter(characterID, 1, "You are playful.", `{"opening_message": "One.", "branches": []}`),
		storyChapter(characterID, 3, "You are wistful now.", `{"opening_message": "Three.", "branches": []}`),
	}
	stored := models.NewProgressPosition(userID, characterID, 3)
	stored.FreeRoamUnlocked = true

	chapterRepo := new(mocks.ChapterRepository)
	progressRepo := new(mocks.ProgressRepository)
	chapterRepo.On("ListByCharacter", mock.Anything, characterID).Return(chapters, nil)
	progressRepo.On("Get", mock.Anything, userID, characterID).Return(&stored, nil)
	progressRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	gen := &fakeGenerator{reply: "Sure, let's just talk."}
	svc := newTestService(chapterRepo, progressRepo, gen)

	history := []freeroam.Message{{Role: "user", Content: "earlier"}}
	res, err := svc.AdvanceTurn(context.Background(), userID, characterID, engine.Input{Text: "what now?"}, history)
	require.NoError(t, err)

	assert.Equal(t, models.ReplyFreeRoam, res.Reply.Kind)
	assert.Equal(t, "Sure, let's just talk.", res.Reply.Text)
	assert.Equal(t, "You are wistful now.", gen.lastPrompt)
	assert.Equal(t, history, gen.lastHistory)
}

func TestAdvanceTurnNoChaptersDegradesWithoutPersisting(t *testing.T) {
	userID := uuid.New()
	characterID := uuid.New()

	chapterRepo := new(mocks.ChapterRepository)
	progressRepo := new(mocks.ProgressRepository)
	chapterRepo.On("ListByCharacter", mock.Anything, characterID).Return([]models.Chapter{}, nil)
	progressRepo.On("Get", mock.Anything, userID, characterID).Return(nil, models.ErrNotFound)

	gen := &fakeGenerator{reply: "Hi anyway."}
	svc := newTestService(chapterRepo, progressRepo, gen)

	res, err := svc.AdvanceTurn(context.Background(), userID, characterID, engine.Input{Text: "hi"}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ReplyFreeRoam, res.Reply.Kind)
	assert.Equal(t, "Hi anyway.", res.Reply.Text)
	assert.False(t, res.Position.FreeRoamUnlocked)
	// No position is written when there is nothing to progress through.
	progressRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestAdvanceTurnGeneratorFailurePropagates(t *testing.T) {
	userID := uuid.New()
	characterID := uuid.New()
	stored := models.NewProgressPosition(userID, characterID, 1)
	stored.FreeRoamUnlocked = true

	chapterRepo := new(mocks.ChapterRepository)
	progressRepo := new(mocks.ProgressRepository)
	chapterRepo.On("ListByCharacter", mock.Anything, characterID).Return([]models.Chapter{
		storyChapter(characterID, 1, "", `{"opening_message": "One.", "branches": []}`),
	}, nil)
	progressRepo.On("Get", mock.Anything, userID, characterID).Return(&stored, nil)

	genErr := errors.New("upstream unavailable")
	svc := newTestService(chapterRepo, progressRepo, &fakeGenerator{err: genErr})

	_, err := svc.AdvanceTurn(context.Background(), userID, characterID, engine.Input{Text: "hi"}, nil)
	assert.ErrorIs(t, err, genErr)
	progressRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestResetProgress(t *testing.T) {
	userID := uuid.New()
	characterID := uuid.New()

	progressRepo := new(mocks.ProgressRepository)
	progressRepo.On("Delete", mock.Anything, userID, characterID).Return(nil)

	svc := newTestService(new(mocks.ChapterRepository), progressRepo, &fakeGenerator{})
	require.NoError(t, svc.ResetProgress(context.Background(), userID, characterID))
	progressRepo.AssertExpectations(t)
}

func TestResidualPromptFallsBackToClosestEarlierChapter(t *testing.T) {
	characterID := uuid.New()
	chapters := []models.Chapter{
		storyChapter(characterID, 1, "first", `{}`),
		storyChapter(characterID, 2, "second", `{}`),
		storyChapter(characterID, 5, "fifth", `{}`),
	}

	assert.Equal(t, "second", residualPrompt(chapters, 2))
	assert.Equal(t, "second", residualPrompt(chapters, 4)) // 4 deleted, closest below wins
	assert.Equal(t, "fifth", residualPrompt(chapters, 9))
	assert.Equal(t, "fifth", residualPrompt(chapters, 0)) // nothing below, last overall
	assert.Equal(t, "", residualPrompt(nil, 3))
}
