// Package chat drives a chat turn: optimistic user-message append, the
// round trip to the assistant backend, and reconciliation of the reply
// into the originating session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/ChiaYunhan/one-stop-chatbot/internal/errors"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/ident"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/store"
)

// Sender is the slice of the API client the chat pane needs.
type Sender interface {
	SendMessage(ctx context.Context, messages []model.Message, sessionID string) (*model.Message, string, error)
}

// Controller owns the Idle -> Sending -> Idle state machine for chat
// turns. At most one assistant request is outstanding at a time; a second
// Send while one is in flight is rejected, never queued.
type Controller struct {
	store  *store.ChatStore
	client Sender
	log    *zap.Logger

	// OnSessionExpired, when set, is invoked after a 410 so the root can
	// rotate to a fresh session. Called outside any lock.
	OnSessionExpired func(chatID string)

	inFlight atomic.Bool

	mu      sync.Mutex
	expired map[string]bool
}

func NewController(s *store.ChatStore, client Sender, log *zap.Logger) *Controller {
	return &Controller{
		store:   s,
		client:  client,
		log:     log,
		expired: make(map[string]bool),
	}
}

// Busy reports whether an assistant request is outstanding. The send
// control is disabled while this is true.
func (c *Controller) Busy() bool {
	return c.inFlight.Load()
}

// Expired reports whether the session's backend token was rejected with a
// 410. Input stays disabled for an expired session; its transcript
// remains readable.
func (c *Controller) Expired(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired[chatID]
}

// Send submits content as a new user message on the given chat. The user
// message is appended to the store before the network call and stays
// there regardless of the outcome. The assistant reply is appended to the
// originating chat id, captured here rather than read back from the
// active selection, so navigating away mid-flight never misapplies a
// reply.
func (c *Controller) Send(ctx context.Context, chatID, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message is empty", apperrors.ErrValidation)
	}
	if c.Expired(chatID) {
		return apperrors.ErrSessionExpired
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return apperrors.ErrBusy
	}
	defer c.inFlight.Store(false)

	session, ok := c.store.Get(chatID)
	if !ok {
		return apperrors.ErrNotFound
	}

	userMsg := model.Message{
		ID:        ident.New(),
		Role:      model.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
	c.store.Append(chatID, userMsg, "")

	history := append(session.Messages, userMsg)
	reply, sessionID, err := c.client.SendMessage(ctx, history, session.SessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) {
			c.markExpired(chatID)
			c.log.Info("rotating after session expiry", zap.String("chat_id", chatID))
			if c.OnSessionExpired != nil {
				c.OnSessionExpired(chatID)
			}
		}
		return err
	}

	// Append targets the captured id; if the session was deleted while
	// the request was in flight this is a silent no-op in the store.
	c.store.Append(chatID, *reply, sessionID)
	return nil
}

func (c *Controller) markExpired(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired[chatID] = true
}
