// Package app wires the client together: the chat session store, the two
// pane controllers and the active-view flag, plus the terminal loop that
// fronts them.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/ChiaYunhan/one-stop-chatbot/internal/api"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/chat"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/config"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/kb"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/logger"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/store"
)

// Root owns the chat session store and the active-view flag, and routes
// the sidebar intents. Exactly one view is active at a time.
type Root struct {
	log   *zap.Logger
	store *store.ChatStore

	Chat *chat.Controller
	KB   *kb.Controller

	mu         sync.Mutex
	activeView model.View
}

// New builds the full object graph around one shared API client.
func New(cfg *config.Config, log *zap.Logger) *Root {
	client := api.NewClient(cfg.BackendURL, cfg.RequestTimeout(), log)
	chatStore := store.NewChatStore()

	r := &Root{
		log:        log,
		store:      chatStore,
		Chat:       chat.NewController(chatStore, client, log),
		KB:         kb.NewController(client, cfg.LinkCacheTTL(), log),
		activeView: model.ViewKnowledgeBase,
	}

	// A 410 rotates to a fresh session; the expired transcript stays in
	// the sidebar, readable but closed for input.
	r.Chat.OnSessionExpired = func(chatID string) {
		replacement := r.NewChat()
		log.Info("opened replacement session after expiry",
			zap.String("expired_chat_id", chatID),
			zap.String("new_chat_id", replacement.ID))
	}
	return r
}

// ActiveView reports which pane is showing.
func (r *Root) ActiveView() model.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeView
}

// SetActiveView switches panes with no other side effects.
func (r *Root) SetActiveView(v model.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeView = v
}

// NewChat creates a session, selects it and switches to the chat pane.
func (r *Root) NewChat() model.ChatSession {
	session := r.store.Create()
	r.SetActiveView(model.ViewChat)
	return session
}

// SelectChat activates an existing session and switches to the chat pane.
func (r *Root) SelectChat(id string) error {
	if err := r.store.Select(id); err != nil {
		return err
	}
	r.SetActiveView(model.ViewChat)
	return nil
}

// DeleteChat removes a session; deleting the active one yields a fresh
// replacement so the sidebar never empties out.
func (r *Root) DeleteChat(id string) error {
	replacement, created, err := r.store.Delete(id)
	if err != nil {
		return err
	}
	if created {
		r.log.Info("replaced deleted active chat", zap.String("new_chat_id", replacement.ID))
	}
	return nil
}

// RenameChat retitles a session; blank titles are silently ignored.
func (r *Root) RenameChat(id, title string) error {
	return r.store.Rename(id, title)
}

// OpenKnowledgeBase switches to the knowledge-base pane.
func (r *Root) OpenKnowledgeBase() {
	r.SetActiveView(model.ViewKnowledgeBase)
}

// Chats lists all sessions in creation order.
func (r *Root) Chats() []model.ChatSession {
	return r.store.List()
}

// ActiveChat returns the selected session, if any exists yet.
func (r *Root) ActiveChat() (model.ChatSession, bool) {
	return r.store.Active()
}

// Run is the process entrypoint: configuration, logging, wiring, and the
// interactive terminal loop. It returns the process exit code.
func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	log := logger.New(cfg.LogFile, cfg.LogLevel)
	defer func() {
		_ = log.Sync()
	}()
	log.Info("client starting", zap.String("backend_url", cfg.BackendURL))

	root := New(cfg, log)

	// The document list is best-effort at startup; the pane offers an
	// explicit refresh.
	if err := root.KB.Refresh(context.Background()); err != nil {
		log.Warn("initial document refresh failed", zap.Error(err))
	}

	return newREPL(root, os.Stdin, os.Stdout).run(context.Background())
}
