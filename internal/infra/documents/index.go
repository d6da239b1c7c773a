// File: internal/infra/documents/index.go
package documents

import (
	"sync"
	"time"
)

// Document is an uploaded file reduced to its chunks.
type Document struct {
	ID         string
	Filename   string
	Chunks     []string
	UploadedAt time.Time
}

// Index keeps processed documents in memory, keyed by backend session id.
// Re-uploading a file with the same id replaces the previous document.
type Index struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewIndex() *Index {
	return &Index{docs: make(map[string]Document)}
}

func (x *Index) Put(d Document) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs[d.ID] = d
}

func (x *Index) Get(id string) (Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.docs[id]
	return d, ok
}

func (x *Index) Delete(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, id)
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// EvictOlderThan drops documents uploaded before cutoff and returns how many
// were removed.
func (x *Index) EvictOlderThan(cutoff time.Time) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for id, d := range x.docs {
		if d.UploadedAt.Before(cutoff) {
			delete(x.docs, id)
			n++
		}
	}
	return n
}
