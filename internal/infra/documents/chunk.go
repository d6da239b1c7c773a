// File: internal/infra/documents/chunk.go
package documents

import (
	"regexp"
	"sort"
	"strings"
)

const DefaultChunkSize = 8192

// SplitIntoChunks packs blank-line separated paragraphs greedily into chunks
// of roughly size characters. A paragraph longer than size gets a chunk of
// its own. Every chunk keeps the trailing paragraph separator.
func SplitIntoChunks(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var (
		chunks  []string
		current strings.Builder
	)
	for _, para := range strings.Split(text, "\n\n") {
		if current.Len()+len(para) < size {
			current.WriteString(para)
			current.WriteString("\n\n")
			continue
		}
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
		}
		current.Reset()
		current.WriteString(para)
		current.WriteString("\n\n")
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func wordSet(s string) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// MostRelevant ranks chunks by how many distinct query words they contain
// and returns the best max of them. Ties go to the lexically greater chunk.
func MostRelevant(query string, chunks []string, max int) []string {
	if max <= 0 {
		max = 1
	}
	q := wordSet(query)

	type scored struct {
		score int
		chunk string
	}
	ranked := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		n := 0
		for w := range wordSet(c) {
			if _, ok := q[w]; ok {
				n++
			}
		}
		ranked = append(ranked, scored{score: n, chunk: c})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].chunk > ranked[j].chunk
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.chunk
	}
	return out
}
