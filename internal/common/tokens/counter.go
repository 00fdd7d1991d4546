// Package tokens estimates token counts for prompts and streamed output.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with the cl100k codec, falling back to a
// character heuristic when the codec cannot be loaded.
type Counter struct {
	once  sync.Once
	codec tokenizer.Codec
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) load() {
	c.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			c.codec = codec
		}
	})
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.load()
	if c.codec != nil {
		ids, _, err := c.codec.Encode(text)
		if err == nil {
			return len(ids)
		}
	}
	return Estimate(text)
}

// Messages counts a chat transcript. Each message carries a fixed
// framing overhead of 4 tokens plus 3 for the reply primer.
func (c *Counter) Messages(contents ...string) int {
	if len(contents) == 0 {
		return 0
	}
	total := 3
	for _, content := range contents {
		total += 4 + c.Count(content)
	}
	return total
}

// Estimate is the codec-free fallback: about four characters per token.
func Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
