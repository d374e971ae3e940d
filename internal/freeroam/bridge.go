package freeroam

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"storyline-server/internal/models"
)

// Message is one prior conversation turn carried into free roam.
type Message struct {
	Role    string `json:"role"` // "user" or "character"
	Content string `json:"content"`
}

// ReplyGenerator is the opaque reply-generation collaborator. The bridge
// treats it as a black box with its own timeout semantics.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, personaContext string, history []Message, userText string) (string, error)
}

// TokenCounter estimates the token cost of a string, used to keep the
// history window inside the model's budget.
type TokenCounter interface {
	Count(text string) int
}

// Bridge handles every turn after a user's position unlocks free roam.
// The last scripted chapter's system prompt rides along as residual persona
// context, so the tone established by the storyline persists into open
// conversation. The transition is one-way; the bridge never consults
// chapter content.
type Bridge struct {
	gen           ReplyGenerator
	counter       TokenCounter
	historyBudget int
	logger        *zap.Logger
}

// NewBridge wires the bridge. historyBudget caps the token estimate of the
// history window passed to the generator; zero or negative disables trimming.
func NewBridge(gen ReplyGenerator, counter TokenCounter, historyBudget int, logger *zap.Logger) *Bridge {
	return &Bridge{
		gen:           gen,
		counter:       counter,
		historyBudget: historyBudget,
		logger:        logger.Named("FreeRoamBridge"),
	}
}

// Respond produces the character's unscripted reply for one free-roam turn.
// residualPrompt is the system prompt of the chapter the user finished on.
func (b *Bridge) Respond(ctx context.Context, residualPrompt string, history []Message, userText string) (models.ReplyUnit, error) {
	trimmed := b.trimHistory(history)
	if len(trimmed) < len(history) {
		b.logger.Debug("trimmed free-roam history to token budget",
			zap.Int("kept", len(trimmed)),
			zap.Int("dropped", len(history)-len(trimmed)))
	}

	text, err := b.gen.GenerateReply(ctx, strings.TrimSpace(residualPrompt), trimmed, userText)
	if err != nil {
		return models.ReplyUnit{}, err
	}
	return models.ReplyUnit{Kind: models.ReplyFreeRoam, Text: text}, nil
}

// trimHistory drops the oldest messages until the window fits the budget.
// The most recent turns carry the conversational state, so trimming is
// always front-to-back.
func (b *Bridge) trimHistory(history []Message) []Message {
	if b.historyBudget <= 0 || b.counter == nil || len(history) == 0 {
		return history
	}

	total := 0
	costs := make([]int, len(history))
	for i, msg := range history {
		costs[i] = b.counter.Count(msg.Content)
		total += costs[i]
	}

	start := 0
	for start < len(history) && total > b.historyBudget {
		total -= costs[start]
		start++
	}
	return history[start:]
}
