package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyline-server/internal/engine"
	"storyline-server/internal/models"
	"storyline-server/internal/schema"
	"storyline-server/internal/service"
)

// StorylineHandler exposes the operator editor API and the runtime turn API.
type StorylineHandler struct {
	editorSvc service.EditorService
	storySvc  service.StorylineService
	logger    *zap.Logger
}

// NewStorylineHandler creates the HTTP handler.
func NewStorylineHandler(editorSvc service.EditorService, storySvc service.StorylineService, logger *zap.Logger) *StorylineHandler {
	return &StorylineHandler{
		editorSvc: editorSvc,
		storySvc:  storySvc,
		logger:    logger.Named("StorylineHandler"),
	}
}

// RegisterRoutes registers all routes on the gin engine.
func (h *StorylineHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/characters/:characterID/chapters", h.listChapters)
		api.POST("/characters/:characterID/chapters", h.createChapter)
		api.POST("/characters/:characterID/turn", h.advanceTurn)

		api.GET("/chapters/:id", h.getChapter)
		api.PUT("/chapters/:id", h.updateChapter)
		api.DELETE("/chapters/:id", h.deleteChapter)

		api.POST("/editor/sessions", h.openSession)
		api.GET("/editor/sessions/:id", h.sessionState)
		api.DELETE("/editor/sessions/:id", h.closeSession)
		api.PUT("/editor/sessions/:id/raw", h.rawEdit)
		api.PUT("/editor/sessions/:id/visual", h.visualEdit)
		api.POST("/editor/sessions/:id/save", h.saveSession)
	}

	internal := r.Group("/internal")
	{
		internal.DELETE("/progress/:userID/:characterID", h.resetProgress)
	}
}

// respondError maps domain errors onto HTTP statuses. Nothing on the turn
// path should ever be fatal to the end-user conversation; errors reaching
// here are infrastructure failures or operator mistakes.
func (h *StorylineHandler) respondError(c *gin.Context, err error) {
	var validationErr *schema.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "content document is structurally invalid",
			"issues":  validationErr.Issues,
		})
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrEditorSessionNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrDuplicateChapterNumber):
		c.JSON(http.StatusConflict, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrDocumentBlocked):
		c.JSON(http.StatusConflict, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "internal server error"})
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// --- Chapter CRUD ---

func (h *StorylineHandler) listChapters(c *gin.Context) {
	characterID, ok := parseUUIDParam(c, "characterID")
	if !ok {
		return
	}
	chapters, err := h.editorSvc.ListChapters(c.Request.Context(), characterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]ChapterResponse, len(chapters))
	for i := range chapters {
		out[i] = toChapterResponse(&chapters[i])
	}
	c.JSON(http.StatusOK, out)
}

func (h *StorylineHandler) createChapter(c *gin.Context) {
	characterID, ok := parseUUIDParam(c, "characterID")
	if !ok {
		return
	}
	var req service.CreateChapterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}
	chapter, err := h.editorSvc.CreateChapter(c.Request.Context(), characterID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toChapterResponse(chapter))
}

func (h *StorylineHandler) getChapter(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	chapter, err := h.editorSvc.GetChapter(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toChapterResponse(chapter))
}

func (h *StorylineHandler) updateChapter(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdateChapterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}
	chapter, err := h.editorSvc.UpdateChapter(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toChapterResponse(chapter))
}

func (h *StorylineHandler) deleteChapter(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.editorSvc.DeleteChapter(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Editor sessions ---

func (h *StorylineHandler) openSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}
	sessionID, state, err := h.editorSvc.OpenSession(c.Request.Context(), req.ChapterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, OpenSessionResponse{SessionID: sessionID, State: state})
}

func (h *StorylineHandler) sessionState(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	state, err := h.editorSvc.SessionState(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *StorylineHandler) closeSession(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	h.editorSvc.CloseSession(id)
	c.Status(http.StatusNoContent)
}

func (h *StorylineHandler) rawEdit(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req RawEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}
	state, err := h.editorSvc.RawEdit(id, req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *StorylineHandler) visualEdit(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req VisualEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}
	state, err := h.editorSvc.VisualEdit(id, req.Path, req.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *StorylineHandler) saveSession(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	chapter, err := h.editorSvc.SaveSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toChapterResponse(chapter))
}

// --- Runtime ---

func (h *StorylineHandler) advanceTurn(c *gin.Context) {
	characterID, ok := parseUUIDParam(c, "characterID")
	if !ok {
		return
	}
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}
	result, err := h.storySvc.AdvanceTurn(c.Request.Context(), req.UserID, characterID,
		engine.Input{ChoiceID: req.ChoiceID, Text: req.Text}, req.History)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *StorylineHandler) resetProgress(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userID")
	if !ok {
		return
	}
	characterID, ok := parseUUIDParam(c, "characterID")
	if !ok {
		return
	}
	if err := h.storySvc.ResetProgress(c.Request.Context(), userID, characterID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
