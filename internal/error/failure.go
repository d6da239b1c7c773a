package derror

import (
	"errors"
	"fmt"
)

// Kind classifies the failures the chat subsystem recovers from.
type Kind string

const (
	// PersistenceRead: stored collection absent, corrupt or unreachable.
	PersistenceRead Kind = "persistence_read"
	// PersistenceWrite: collection could not be written; memory stays authoritative.
	PersistenceWrite Kind = "persistence_write"
	// BackendRequest: the inference backend failed or answered non-success.
	BackendRequest Kind = "backend_request"
	// Upload: the document upload failed.
	Upload Kind = "upload"
)

var ErrCorruptPayload = errors.New("stored payload is not a session collection")

// Failure carries the kind and the failing operation around an underlying error.
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Op)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Op, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// IsKind reports whether err wraps a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
