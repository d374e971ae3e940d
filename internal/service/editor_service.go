package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyline-server/internal/editor"
	"storyline-server/internal/models"
	"storyline-server/internal/repository"
	"storyline-server/internal/schema"
)

// CreateChapterInput is the operator's payload for a new chapter. A zero
// ChapterNumber is assigned max(existing)+1; empty Content gets the default
// draft document.
type CreateChapterInput struct {
	ChapterNumber int             `json:"chapterNumber"`
	Title         string          `json:"title"`
	Tone          string          `json:"tone"`
	Description   string          `json:"description"`
	SystemPrompt  string          `json:"systemPrompt"`
	Content       json.RawMessage `json:"content,omitempty"`
}

// UpdateChapterInput patches chapter fields; nil pointers leave a field
// untouched. Content, when present, must pass structural validation.
type UpdateChapterInput struct {
	ChapterNumber *int            `json:"chapterNumber,omitempty"`
	Title         *string         `json:"title,omitempty"`
	Tone          *string         `json:"tone,omitempty"`
	Description   *string         `json:"description,omitempty"`
	SystemPrompt  *string         `json:"systemPrompt,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
}

// EditorService is the operator-facing surface: chapter CRUD plus stateful
// dual-representation editing sessions.
type EditorService interface {
	ListChapters(ctx context.Context, characterID uuid.UUID) ([]models.Chapter, error)
	GetChapter(ctx context.Context, id uuid.UUID) (*models.Chapter, error)
	CreateChapter(ctx context.Context, characterID uuid.UUID, in CreateChapterInput) (*models.Chapter, error)
	UpdateChapter(ctx context.Context, id uuid.UUID, in UpdateChapterInput) (*models.Chapter, error)
	DeleteChapter(ctx context.Context, id uuid.UUID) error

	OpenSession(ctx context.Context, chapterID uuid.UUID) (uuid.UUID, editor.State, error)
	SessionState(sessionID uuid.UUID) (editor.State, error)
	RawEdit(sessionID uuid.UUID, text string) (editor.State, error)
	VisualEdit(sessionID uuid.UUID, path string, value interface{}) (editor.State, error)
	SaveSession(ctx context.Context, sessionID uuid.UUID) (*models.Chapter, error)
	CloseSession(sessionID uuid.UUID)
}

type editorSession struct {
	chapterID  uuid.UUID
	controller *editor.Controller
}

type editorServiceImpl struct {
	chapterRepo repository.ChapterRepository
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*editorSession
}

// NewEditorService creates the editor service. Sessions live in memory: one
// operator session owns one canonical document at a time, and last save wins
// at the store.
func NewEditorService(chapterRepo repository.ChapterRepository, logger *zap.Logger) EditorService {
	return &editorServiceImpl{
		chapterRepo: chapterRepo,
		logger:      logger.Named("EditorService"),
		sessions:    make(map[uuid.UUID]*editorSession),
	}
}

func (s *editorServiceImpl) ListChapters(ctx context.Context, characterID uuid.UUID) ([]models.Chapter, error) {
	return s.chapterRepo.ListByCharacter(ctx, characterID)
}

func (s *editorServiceImpl) GetChapter(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	return s.chapterRepo.GetByID(ctx, id)
}

func (s *editorServiceImpl) CreateChapter(ctx context.Context, characterID uuid.UUID, in CreateChapterInput) (*models.Chapter, error) {
	content := in.Content
	if len(content) == 0 {
		content = models.DefaultContent()
	} else if _, err := schema.Validate(content); err != nil {
		return nil, err
	}

	chapter := &models.Chapter{
		CharacterID:   characterID,
		ChapterNumber: in.ChapterNumber,
		Title:         in.Title,
		Tone:          in.Tone,
		Description:   in.Description,
		SystemPrompt:  in.SystemPrompt,
		Content:       content,
	}
	if err := s.chapterRepo.Create(ctx, chapter); err != nil {
		return nil, err
	}
	return chapter, nil
}

func (s *editorServiceImpl) UpdateChapter(ctx context.Context, id uuid.UUID, in UpdateChapterInput) (*models.Chapter, error) {
	chapter, err := s.chapterRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.ChapterNumber != nil {
		chapter.ChapterNumber = *in.ChapterNumber
	}
	if in.Title != nil {
		chapter.Title = *in.Title
	}
	if in.Tone != nil {
		chapter.Tone = *in.Tone
	}
	if in.Description != nil {
		chapter.Description = *in.Description
	}
	if in.SystemPrompt != nil {
		chapter.SystemPrompt = *in.SystemPrompt
	}
	if len(in.Content) > 0 {
		// Structural invalidity blocks the save; quality issues are
		// warnings and never block.
		if _, err := schema.Validate(in.Content); err != nil {
			return nil, err
		}
		chapter.Content = in.Content
	}

	if err := s.chapterRepo.Update(ctx, chapter); err != nil {
		return nil, err
	}
	return chapter, nil
}

func (s *editorServiceImpl) DeleteChapter(ctx context.Context, id uuid.UUID) error {
	// Progress positions pointing at the deleted chapter stay behind; the
	// progression engine repairs them on the next turn.
	return s.chapterRepo.Delete(ctx, id)
}

func (s *editorServiceImpl) OpenSession(ctx context.Context, chapterID uuid.UUID) (uuid.UUID, editor.State, error) {
	chapter, err := s.chapterRepo.GetByID(ctx, chapterID)
	if err != nil {
		return uuid.Nil, editor.State{}, err
	}

	sessionID := uuid.New()
	sess := &editorSession{
		chapterID:  chapter.ID,
		controller: editor.NewController(chapter.Content, s.logger),
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	s.logger.Debug("Opened editor session",
		zap.Stringer("sessionID", sessionID),
		zap.Stringer("chapterID", chapterID))
	return sessionID, sess.controller.Snapshot(), nil
}

func (s *editorServiceImpl) session(sessionID uuid.UUID) (*editorSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, models.ErrEditorSessionNotFound
	}
	return sess, nil
}

func (s *editorServiceImpl) SessionState(sessionID uuid.UUID) (editor.State, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return editor.State{}, err
	}
	return sess.controller.Snapshot(), nil
}

func (s *editorServiceImpl) RawEdit(sessionID uuid.UUID, text string) (editor.State, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return editor.State{}, err
	}
	sess.controller.OnRawEdit(text)
	return sess.controller.Snapshot(), nil
}

func (s *editorServiceImpl) VisualEdit(sessionID uuid.UUID, path string, value interface{}) (editor.State, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return editor.State{}, err
	}
	if err := sess.controller.OnVisualEdit(path, value); err != nil {
		return sess.controller.Snapshot(), err
	}
	return sess.controller.Snapshot(), nil
}

func (s *editorServiceImpl) SaveSession(ctx context.Context, sessionID uuid.UUID) (*models.Chapter, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	content, err := sess.controller.Content()
	if err != nil {
		return nil, err
	}
	return s.UpdateChapter(ctx, sess.chapterID, UpdateChapterInput{Content: content})
}

func (s *editorServiceImpl) CloseSession(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}
