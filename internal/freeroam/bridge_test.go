package freeroam

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyline-server/internal/models"
)

type stubGenerator struct {
	lastPrompt  string
	lastHistory []Message
	lastText    string
	reply       string
	err         error
}

func (s *stubGenerator) GenerateReply(ctx context.Context, personaContext string, history []Message, userText string) (string, error) {
	s.lastPrompt = personaContext
	s.lastHistory = history
	s.lastText = userText
	return s.reply, s.err
}

// wordCounter charges one token per space-separated word.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

func TestRespondPassesThrough(t *testing.T) {
	gen := &stubGenerator{reply: "Of course."}
	b := NewBridge(gen, nil, 0, zap.NewNop())

	history := []Message{{Role: "user", Content: "hi"}, {Role: "character", Content: "hello"}}
	reply, err := b.Respond(context.Background(), "  You are calm.  ", history, "tell me more")
	require.NoError(t, err)

	assert.Equal(t, models.ReplyFreeRoam, reply.Kind)
	assert.Equal(t, "Of course.", reply.Text)
	assert.Equal(t, "You are calm.", gen.lastPrompt)
	assert.Equal(t, history, gen.lastHistory)
	assert.Equal(t, "tell me more", gen.lastText)
}

func TestRespondPropagatesGeneratorError(t *testing.T) {
	genErr := errors.New("model timed out")
	b := NewBridge(&stubGenerator{err: genErr}, nil, 0, zap.NewNop())

	_, err := b.Respond(context.Background(), "", nil, "hi")
	assert.ErrorIs(t, err, genErr)
}

func TestTrimHistoryDropsOldestFirst(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	b := NewBridge(gen, wordCounter{}, 5, zap.NewNop())

	history := []Message{
		{Role: "user", Content: "one two three"},      // 3 tokens
		{Role: "character", Content: "four five"},     // 2 tokens
		{Role: "user", Content: "six seven eight"},    // 3 tokens
	}

	_, err := b.Respond(context.Background(), "", history, "next")
	require.NoError(t, err)

	// 8 tokens total, budget 5: the oldest message goes, the rest fit.
	require.Len(t, gen.lastHistory, 2)
	assert.Equal(t, "four five", gen.lastHistory[0].Content)
	assert.Equal(t, "six seven eight", gen.lastHistory[1].Content)
}

func TestTrimHistoryDisabledWithoutBudget(t *testing.T) {
	b := NewBridge(nil, wordCounter{}, 0, zap.NewNop())

	history := make([]Message, 50)
	for i := range history {
		history[i] = Message{Role: "user", Content: "word word word word"}
	}
	assert.Len(t, b.trimHistory(history), 50)
}

func TestTrimHistoryCanDropEverything(t *testing.T) {
	b := NewBridge(nil, wordCounter{}, 1, zap.NewNop())

	history := []Message{
		{Role: "user", Content: "far too many words here"},
		{Role: "character", Content: "still several words long"},
	}
	assert.Empty(t, b.trimHistory(history))
}
