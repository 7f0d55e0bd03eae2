// Package store holds the in-memory chat session mapping. Nothing here
// is persisted: a process restart loses all chats, matching the page
// session lifetime of the UI this client models.
package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ChiaYunhan/one-stop-chatbot/internal/errors"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/ident"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
)

// ChatStore owns the chat-id to session mapping and the active-chat
// pointer. The active id always references an existing session or is
// empty. Sessions handed out are copies; mutation goes through methods.
type ChatStore struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	order    []string
	activeID string
	counter  int
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		sessions: make(map[string]*model.ChatSession),
		counter:  1,
	}
}

// Create allocates a new session titled "New Chat N", makes it active and
// returns it. The counter only feeds default titles; it increments on
// every create and never resets, so titles are not unique after renames
// or deletes. That is cosmetic and intentional.
func (s *ChatStore) Create() model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *ChatStore) createLocked() model.ChatSession {
	now := time.Now()
	session := &model.ChatSession{
		ID:        ident.New(),
		Title:     fmt.Sprintf("New Chat %d", s.counter),
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.counter++
	s.sessions[session.ID] = session
	s.order = append(s.order, session.ID)
	s.activeID = session.ID
	return copySession(session)
}

// Delete removes the session. Deleting the active session atomically
// creates and activates a replacement, so the store is never left with a
// dangling active id or zero sessions after a delete-while-active.
// The replacement (or the zero value when none was needed) is returned.
func (s *ChatStore) Delete(id string) (replacement model.ChatSession, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return model.ChatSession{}, false, apperrors.ErrNotFound
	}
	delete(s.sessions, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.activeID != id {
		return model.ChatSession{}, false, nil
	}
	return s.createLocked(), true, nil
}

// Rename sets the session title. A blank or whitespace-only title is
// silently ignored; a non-empty title is stored as given, untrimmed.
func (s *ChatStore) Rename(id, newTitle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if strings.TrimSpace(newTitle) == "" {
		return nil
	}
	session.Title = newTitle
	session.UpdatedAt = time.Now()
	return nil
}

// Append adds a message to the session's transcript and adopts sessionID
// as the backend correlation token if the session has none yet. Unknown
// ids are a silent no-op: the session may have been deleted while the
// request that produced this message was in flight.
func (s *ChatStore) Append(id string, msg model.Message, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = time.Now()
	if sessionID != "" && session.SessionID == "" {
		session.SessionID = sessionID
	}
}

// Select makes the session active.
func (s *ChatStore) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return apperrors.ErrNotFound
	}
	s.activeID = id
	return nil
}

// Active returns the active session, if any.
func (s *ChatStore) Active() (model.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[s.activeID]
	if !ok {
		return model.ChatSession{}, false
	}
	return copySession(session), true
}

// ActiveID returns the active session id, or "" when none exists.
func (s *ChatStore) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Get returns the session by id.
func (s *ChatStore) Get(id string) (model.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return model.ChatSession{}, false
	}
	return copySession(session), true
}

// List returns all sessions in creation order.
func (s *ChatStore) List() []model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ChatSession, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copySession(s.sessions[id]))
	}
	return out
}

// Len returns the number of sessions.
func (s *ChatStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func copySession(session *model.ChatSession) model.ChatSession {
	out := *session
	out.Messages = make([]model.Message, len(session.Messages))
	copy(out.Messages, session.Messages)
	return out
}
