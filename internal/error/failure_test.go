package derror

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailure_WrapAndMatch(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("send: %w", New(BackendRequest, "chat", base))

	if !IsKind(err, BackendRequest) {
		t.Fatalf("expected backend failure, got %v", err)
	}
	if IsKind(err, Upload) {
		t.Fatalf("upload kind should not match")
	}
	if !errors.Is(err, base) {
		t.Fatalf("underlying error should be reachable via errors.Is")
	}
	if got := New(Upload, "upload-pdf", nil).Error(); got != "upload: upload-pdf" {
		t.Fatalf("unexpected message %q", got)
	}
}
