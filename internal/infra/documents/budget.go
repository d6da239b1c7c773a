// File: internal/infra/documents/budget.go
package documents

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// Counter measures and cuts text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, max int) string
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c tiktokenCounter) Truncate(text string, max int) string {
	toks := c.enc.Encode(text, nil, nil)
	if len(toks) <= max {
		return text
	}
	if max <= 0 {
		return ""
	}
	return c.enc.Decode(toks[:max])
}

// approxCounter assumes four bytes per token.
type approxCounter struct{}

func (approxCounter) Count(text string) int { return (len(text) + 3) / 4 }

func (approxCounter) Truncate(text string, max int) string {
	limit := max * 4
	if max <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	// back off to a rune boundary
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// NewCounter returns a tiktoken counter for encoding. When the encoding
// cannot be loaded (offline, unknown name) it falls back to an estimate and
// reports false.
func NewCounter(encoding string) (Counter, bool) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return approxCounter{}, false
	}
	return tiktokenCounter{enc: enc}, true
}

// ApproxCounter is the byte-length estimate used when no encoding is available.
func ApproxCounter() Counter { return approxCounter{} }

// FitBudget keeps chunks in order while they fit in max tokens. The first
// chunk is truncated rather than dropped when it alone is over budget.
func FitBudget(chunks []string, c Counter, max int) []string {
	if max <= 0 {
		return chunks
	}
	out := make([]string, 0, len(chunks))
	used := 0
	for i, ch := range chunks {
		n := c.Count(ch)
		if used+n <= max {
			out = append(out, ch)
			used += n
			continue
		}
		if i == 0 {
			out = append(out, c.Truncate(ch, max))
		}
		break
	}
	return out
}
