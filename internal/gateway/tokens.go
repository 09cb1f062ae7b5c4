package gateway

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hunterjsb/doorknock/internal/domain"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base encoding, loaded on first
// use. If the encoding cannot be loaded it falls back to EstimateTokens.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens is max(runes/4, words), and at least 1 for non-empty text.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	return max(estimate, 1)
}

// fit drops the oldest transcript entries until the prompt fits the
// configured budget. The latest entry is always kept.
func (c *Client) fit(system string, transcript domain.Transcript) domain.Transcript {
	if c.cfg.MaxPromptTokens <= 0 || len(transcript) == 0 {
		return transcript
	}
	budget := c.cfg.MaxPromptTokens - c.count(system)
	start := len(transcript)
	for start > 0 {
		cost := c.count(transcript[start-1].Text)
		if budget-cost < 0 && start < len(transcript) {
			break
		}
		budget -= cost
		start--
	}
	if start > 0 {
		c.log.Debug().Int("dropped", start).Int("kept", len(transcript)-start).Msg("Trimmed transcript to prompt budget")
	}
	return transcript[start:]
}
