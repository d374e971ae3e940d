package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyline-server/internal/engine"
	"storyline-server/internal/freeroam"
	"storyline-server/internal/lock"
	"storyline-server/internal/models"
	"storyline-server/internal/repository"
)

// TurnResult is what one resolved conversation turn produces.
type TurnResult struct {
	Reply    models.ReplyUnit        `json:"reply"`
	Position models.ProgressPosition `json:"position"`
}

// StorylineService resolves user turns against a character's storyline.
type StorylineService interface {
	// AdvanceTurn resolves one turn: scripted progression while the story
	// runs, free-roam generation after the story releases the user.
	AdvanceTurn(ctx context.Context, userID, characterID uuid.UUID, in engine.Input, history []freeroam.Message) (*TurnResult, error)

	// ResetProgress drops a user's stored position, restarting the
	// storyline from its first chapter. Operator-only escape hatch; the
	// free-roam transition is otherwise one-way.
	ResetProgress(ctx context.Context, userID, characterID uuid.UUID) error
}

type storylineServiceImpl struct {
	chapterRepo  repository.ChapterRepository
	progressRepo repository.ProgressRepository
	engine       *engine.Engine
	bridge       *freeroam.Bridge
	locker       lock.ProgressLocker
	logger       *zap.Logger
}

// NewStorylineService creates the turn-resolution service.
func NewStorylineService(
	chapterRepo repository.ChapterRepository,
	progressRepo repository.ProgressRepository,
	eng *engine.Engine,
	bridge *freeroam.Bridge,
	locker lock.ProgressLocker,
	logger *zap.Logger,
) StorylineService {
	return &storylineServiceImpl{
		chapterRepo:  chapterRepo,
		progressRepo: progressRepo,
		engine:       eng,
		bridge:       bridge,
		locker:       locker,
		logger:       logger.Named("StorylineService"),
	}
}

func (s *storylineServiceImpl) AdvanceTurn(ctx context.Context, userID, characterID uuid.UUID, in engine.Input, history []freeroam.Message) (*TurnResult, error) {
	// Per-pair mutex: two near-simultaneous messages must not both advance
	// from the same chapter.
	release, err := s.locker.Acquire(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Always load chapters fresh so an operator's mid-conversation edit is
	// reflected on the very next message.
	chapters, err := s.chapterRepo.ListByCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}

	pos, err := s.loadOrCreatePosition(ctx, userID, characterID, chapters)
	if err != nil {
		return nil, err
	}

	reply, newPos, err := s.engine.Advance(*pos, chapters, in)
	if errors.Is(err, models.ErrNoStoryContent) {
		// Character has no authored chapters at all: degrade to unscripted
		// chat without touching the stored position.
		s.logger.Warn("no story content, degrading to unscripted chat",
			zap.Stringer("characterID", characterID))
		freeReply, genErr := s.bridge.Respond(ctx, "", history, in.Text)
		if genErr != nil {
			return nil, genErr
		}
		return &TurnResult{Reply: freeReply, Position: *pos}, nil
	}
	if err != nil {
		return nil, err
	}

	if reply.Kind == models.ReplyFreeRoam {
		// The engine produced no scripted unit; generate the reply with the
		// last chapter's system prompt as residual persona context.
		freeReply, genErr := s.bridge.Respond(ctx, residualPrompt(chapters, newPos.CurrentChapterNumber), history, in.Text)
		if genErr != nil {
			return nil, genErr
		}
		reply = freeReply
	}

	if err := s.progressRepo.Upsert(ctx, &newPos); err != nil {
		return nil, err
	}
	return &TurnResult{Reply: reply, Position: newPos}, nil
}

func (s *storylineServiceImpl) ResetProgress(ctx context.Context, userID, characterID uuid.UUID) error {
	release, err := s.locker.Acquire(ctx, userID, characterID)
	if err != nil {
		return err
	}
	defer release()

	return s.progressRepo.Delete(ctx, userID, characterID)
}

// loadOrCreatePosition fetches the stored position, or builds a fresh one
// pointing at the lowest existing chapter for a first interaction.
func (s *storylineServiceImpl) loadOrCreatePosition(ctx context.Context, userID, characterID uuid.UUID, chapters []models.Chapter) (*models.ProgressPosition, error) {
	pos, err := s.progressRepo.Get(ctx, userID, characterID)
	if err == nil {
		return pos, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	first := 0
	if len(chapters) > 0 {
		first = chapters[0].ChapterNumber
	}
	fresh := models.NewProgressPosition(userID, characterID, first)
	return &fresh, nil
}

// residualPrompt picks the system prompt that should persist into free roam:
// the chapter the user is positioned on, or failing that the closest
// authored chapter before it, or the last chapter overall.
func residualPrompt(chapters []models.Chapter, chapterNumber int) string {
	if len(chapters) == 0 {
		return ""
	}
	best := -1
	for i := range chapters {
		if chapters[i].ChapterNumber == chapterNumber {
			return chapters[i].SystemPrompt
		}
		if chapters[i].ChapterNumber < chapterNumber {
			best = i
		}
	}
	if best >= 0 {
		return chapters[best].SystemPrompt
	}
	return chapters[len(chapters)-1].SystemPrompt
}
