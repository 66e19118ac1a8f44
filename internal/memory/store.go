// Package memory keeps a small, recent window of dialogue per session so
// follow-up questions can be answered with prior context. The store is
// process-lifetime and safe for concurrent use; sessions are created lazily
// on first write and evicted per-message, never per-session.
package memory

import (
	"strings"
	"sync"
)

// MaxMessages bounds every session log. Insertion beyond the bound evicts
// the oldest message first.
const MaxMessages = 10

// FactPrefix marks assistant messages that carry machine-derived facts.
// Messages with this prefix survive filtering into future prompt context.
const FactPrefix = "FACTS: "

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const noPriorMessages = "(no prior messages)\n"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store holds per-session conversation logs. Operations on the same session
// key are serialized; distinct keys do not block each other beyond the brief
// map lookup.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionLog
}

type sessionLog struct {
	mu       sync.Mutex
	messages []Message
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionLog)}
}

// Append adds a message to the session's log, evicting the oldest message
// when the log is full. An empty session key is a no-op.
func (s *Store) Append(sessionKey, role, content string) {
	if sessionKey == "" {
		return
	}
	log := s.session(sessionKey)

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.messages) >= MaxMessages {
		log.messages = log.messages[1:]
	}
	log.messages = append(log.messages, Message{Role: role, Content: content})
}

// Messages returns an oldest-to-newest copy of the session's log. An unknown
// session yields an empty slice.
func (s *Store) Messages(sessionKey string) []Message {
	s.mu.RLock()
	log, ok := s.sessions[sessionKey]
	s.mu.RUnlock()
	if !ok {
		return []Message{}
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	out := make([]Message, len(log.messages))
	copy(out, log.messages)
	return out
}

// PromptContext renders the transcript that feeds back into model prompts:
// user messages and fact-annotated assistant messages only, oldest first.
// Free-form assistant prose is deliberately excluded so hallucinations do
// not compound across turns.
func (s *Store) PromptContext(sessionKey string) string {
	messages := s.Messages(sessionKey)
	if len(messages) == 0 {
		return noPriorMessages
	}

	var sb strings.Builder
	for _, msg := range messages {
		if msg.Role != RoleUser && !(msg.Role == RoleAssistant && strings.HasPrefix(msg.Content, FactPrefix)) {
			continue
		}
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return noPriorMessages
	}
	return sb.String()
}

func (s *Store) session(sessionKey string) *sessionLog {
	s.mu.RLock()
	log, ok := s.sessions[sessionKey]
	s.mu.RUnlock()
	if ok {
		return log
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok := s.sessions[sessionKey]; ok {
		return log
	}
	log = &sessionLog{}
	s.sessions[sessionKey] = log
	return log
}
