package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// truncateTokens cuts text to at most max tokens. When the encoding is unavailable it
// falls back to four characters per token.
func truncateTokens(text string, max int) string {
	if max <= 0 {
		return text
	}
	if e := encoding(); e != nil {
		tokens := e.Encode(text, nil, nil)
		if len(tokens) <= max {
			return text
		}
		return e.Decode(tokens[:max]) + "\n[truncated]"
	}

	runes := []rune(text)
	if len(runes) <= max*4 {
		return text
	}
	return string(runes[:max*4]) + "\n[truncated]"
}
