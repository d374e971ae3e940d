package freeroam

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter counts tokens with the cl100k_base BPE. If the encoding
// cannot be loaded it falls back to a rune-count estimate, so history
// trimming keeps working offline.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

func NewTiktokenCounter(logger *zap.Logger) *TiktokenCounter {
	log := logger.Named("TiktokenCounter")
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		log.Warn("failed to load tiktoken encoding, falling back to rune estimate", zap.Error(err))
		enc = nil
	}
	return &TiktokenCounter{encoding: enc, logger: log}
}

func (c *TiktokenCounter) Count(text string) int {
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	// Rough average of four characters per token.
	n := len([]rune(text)) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
