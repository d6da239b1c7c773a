package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"

	"docchat/internal/domain/model"
	derror "docchat/internal/error"
)

// Encode serializes the collection as a JSON array of sessions.
func Encode(sessions []*model.ChatSession) ([]byte, error) {
	out := make([]*model.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		if s == nil {
			continue
		}
		cp := s.Clone()
		if cp.Messages == nil {
			cp.Messages = []model.ChatMessage{}
		}
		out = append(out, cp)
	}
	return json.Marshal(out)
}

// Decode parses a stored collection. Anything that is not an array of
// well-formed sessions is reported as ErrCorruptPayload.
func Decode(raw []byte) ([]*model.ChatSession, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []*model.ChatSession{}, nil
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("%w: top-level value is not an array", derror.ErrCorruptPayload)
	}

	var sessions []*model.ChatSession
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, fmt.Errorf("%w: %v", derror.ErrCorruptPayload, err)
	}

	seen := make(map[string]struct{}, len(sessions))
	for i, s := range sessions {
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("%w: session %d: %v", derror.ErrCorruptPayload, i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate session id %q", derror.ErrCorruptPayload, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Messages == nil {
			s.Messages = []model.ChatMessage{}
		}
		// title is derived; never trust the stored one
		s.Title = model.DeriveTitle(s.Messages)
	}
	if sessions == nil {
		sessions = []*model.ChatSession{}
	}
	return sessions, nil
}

func validate(s *model.ChatSession) error {
	if s == nil {
		return fmt.Errorf("null entry")
	}
	if s.ID == "" {
		return fmt.Errorf("missing id")
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("missing createdAt")
	}
	for j, m := range s.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d has role %q", j, m.Role)
		}
	}
	return nil
}
