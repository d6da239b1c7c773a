package model

import (
	"slices"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Mode routes a backend request either to plain chat or to the uploaded document.
type Mode string

const (
	ModeChat Mode = "chat"
	ModePDF  Mode = "pdf"
)

func (m Mode) Valid() bool { return m == ModeChat || m == ModePDF }

const (
	// PlaceholderTitle is shown until the session has a user message.
	PlaceholderTitle = "New Chat"
	// TitleMaxRunes bounds the derived title.
	TitleMaxRunes = 30
)

// ChatMessage is one turn of a conversation. It is comparable, so two logs
// are equal exactly when slices.Equal says so.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ChatSession is one persisted conversation thread.
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"createdAt"`
	Messages  []ChatMessage `json:"messages"`
}

func NewChatSession(id string, now time.Time) *ChatSession {
	return &ChatSession{
		ID:        id,
		Title:     PlaceholderTitle,
		CreatedAt: now,
		Messages:  []ChatMessage{},
	}
}

// SetMessages replaces the log with a copy of msgs and re-derives the title.
func (s *ChatSession) SetMessages(msgs []ChatMessage) {
	s.Messages = CloneMessages(msgs)
	s.Title = DeriveTitle(s.Messages)
}

func (s *ChatSession) AddMessage(m ChatMessage) {
	s.Messages = append(s.Messages, m)
	s.Title = DeriveTitle(s.Messages)
}

func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = CloneMessages(s.Messages)
	return &cp
}

// DeriveTitle returns the first user message truncated to TitleMaxRunes,
// or PlaceholderTitle when there is none or it is empty.
func DeriveTitle(msgs []ChatMessage) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		if m.Content == "" {
			return PlaceholderTitle
		}
		return truncateRunes(m.Content, TitleMaxRunes)
	}
	return PlaceholderTitle
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// MessagesEqual reports deep structural equality: same length and the same
// role and content at every position.
func MessagesEqual(a, b []ChatMessage) bool {
	return slices.Equal(a, b)
}

func CloneMessages(msgs []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func CloneSessions(in []*ChatSession) []*ChatSession {
	out := make([]*ChatSession, 0, len(in))
	for _, s := range in {
		out = append(out, s.Clone())
	}
	return out
}
