package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChiaYunhan/one-stop-chatbot/internal/config"
	apperrors "github.com/ChiaYunhan/one-stop-chatbot/internal/errors"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/kb"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
)

// fakeBackend is an in-process stand-in for the real service, routed the
// same way the service routes its handlers.
type fakeBackend struct {
	mu        sync.Mutex
	chatCalls int
	documents []model.Document

	expireAfter int // when > 0, chat calls past this count return 410
	failDelete  []string
	failPresign []string // file names denied an upload target
	uploads     map[string][]byte

	// baseURL is filled in once the test server is listening, so presigned
	// upload targets can point back at this same server.
	baseURL string
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/chat", f.handleChat)
	r.Post("/documents/list", f.handleList)
	r.Post("/documents/delete", f.handleDelete)
	r.Post("/documents/uploadpresignedurl", f.handlePresign)
	r.Post("/upload/{key}", f.handleUpload)
	r.Post("/documents/sync", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ingestionJobId": "job-1", "status": "STARTING", "startedAt": "2026-09-01T00:00:00Z",
		})
	})
	return r
}

func (f *fakeBackend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages  []model.Message `json:"messages"`
		SessionID string          `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad request"})
		return
	}

	f.mu.Lock()
	f.chatCalls++
	calls := f.chatCalls
	f.mu.Unlock()

	if f.expireAfter > 0 && calls > f.expireAfter {
		writeJSON(w, http.StatusGone, map[string]any{"message": "Session expired"})
		return
	}

	last := req.Messages[len(req.Messages)-1]
	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"message":    "ok",
		"sessionId":  "s1",
		"assistantMessage": map[string]any{
			"id":      "m-reply",
			"role":    model.RoleAssistant,
			"content": "You said: " + last.Content,
			"citation": []map[string]string{
				{"text": "relevant passage", "file": "handbook.pdf"},
			},
		},
	})
}

func (f *fakeBackend) handleList(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	docs := append([]model.Document(nil), f.documents...)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK, "documentDetails": docs,
	})
}

func (f *fakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Documents []model.Document `json:"documents"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	failed := map[string]bool{}
	for _, id := range f.failDelete {
		failed[id] = true
	}
	deleted := 0
	for _, doc := range req.Documents {
		if !failed[doc.ID] {
			deleted++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      len(f.failDelete) == 0,
		"deletedCount": deleted,
		"failedIds":    f.failDelete,
		"message":      "done",
	})
}

func (f *fakeBackend) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files []struct {
			FileName string `json:"fileName"`
			FileType string `json:"fileType"`
		} `json:"files"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	denied := map[string]bool{}
	for _, name := range f.failPresign {
		denied[name] = true
	}
	results := make([]map[string]any, 0, len(req.Files))
	for _, file := range req.Files {
		if denied[file.FileName] {
			results = append(results, map[string]any{
				"fileName": file.FileName, "success": false, "error": "unsupported file type",
			})
			continue
		}
		key := "docs/" + file.FileName
		results = append(results, map[string]any{
			"fileName": file.FileName,
			"success":  true,
			"url":      f.baseURL + "/upload/" + file.FileName,
			"fields":   map[string]string{"key": key},
			"key":      key,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"statusCode": http.StatusOK, "results": results})
}

func (f *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	f.mu.Lock()
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[chi.URLParam(r, "key")] = data
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestRoot(t *testing.T, backend *fakeBackend) *Root {
	t.Helper()
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)
	backend.baseURL = srv.URL

	cfg := &config.Config{
		BackendURL:            srv.URL,
		RequestTimeoutSeconds: 5,
		LinkCacheTTLSeconds:   60,
	}
	return New(cfg, zap.NewNop())
}

func TestChatRoundTrip(t *testing.T) {
	root := newTestRoot(t, &fakeBackend{})
	ctx := context.Background()

	assert.Equal(t, model.ViewKnowledgeBase, root.ActiveView(), "starts on the knowledge-base pane")

	session := root.NewChat()
	assert.Equal(t, model.ViewChat, root.ActiveView())

	require.NoError(t, root.Chat.Send(ctx, session.ID, "Hello"))

	got, ok := root.ActiveChat()
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Hello", got.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "You said: Hello", got.Messages[1].Content)
	require.Len(t, got.Messages[1].Citation, 1)
	assert.Equal(t, "handbook.pdf", got.Messages[1].Citation[0].File)
	assert.Equal(t, "s1", got.SessionID, "backend session token adopted")
}

func TestExpiryOpensReplacementChat(t *testing.T) {
	root := newTestRoot(t, &fakeBackend{expireAfter: 1})
	ctx := context.Background()

	first := root.NewChat()
	require.NoError(t, root.Chat.Send(ctx, first.ID, "Hello"))

	err := root.Chat.Send(ctx, first.ID, "Still there?")
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)

	// A fresh session was opened and selected; the expired transcript
	// stays readable in the sidebar but refuses further input.
	chats := root.Chats()
	require.Len(t, chats, 2)
	active, ok := root.ActiveChat()
	require.True(t, ok)
	assert.NotEqual(t, first.ID, active.ID)
	assert.True(t, root.Chat.Expired(first.ID))

	expired, ok := root.store.Get(first.ID)
	require.True(t, ok)
	assert.Len(t, expired.Messages, 3, "history kept, including the unanswered message")
}

func TestDeleteActiveChatCreatesReplacement(t *testing.T) {
	root := newTestRoot(t, &fakeBackend{})

	session := root.NewChat()
	require.NoError(t, root.DeleteChat(session.ID))

	active, ok := root.ActiveChat()
	require.True(t, ok)
	assert.NotEqual(t, session.ID, active.ID)
	assert.Len(t, root.Chats(), 1)
}

func TestViewSwitching(t *testing.T) {
	root := newTestRoot(t, &fakeBackend{})

	root.NewChat()
	assert.Equal(t, model.ViewChat, root.ActiveView())

	root.OpenKnowledgeBase()
	assert.Equal(t, model.ViewKnowledgeBase, root.ActiveView())

	require.NoError(t, root.SelectChat(root.Chats()[0].ID))
	assert.Equal(t, model.ViewChat, root.ActiveView())
}

func TestDeleteDocumentsReconcilesByFailedIDs(t *testing.T) {
	backend := &fakeBackend{
		documents: []model.Document{
			{ID: "d1", DisplayName: "a.pdf", Status: model.StatusIndexed},
			{ID: "d2", DisplayName: "b.pdf", Status: model.StatusIndexed},
			{ID: "d3", DisplayName: "c.pdf", Status: model.StatusIndexed},
		},
		failDelete: []string{"d2"},
	}
	root := newTestRoot(t, backend)
	ctx := context.Background()

	require.NoError(t, root.KB.Refresh(ctx))
	root.KB.EnterSelection()
	root.KB.SelectAll()

	summary, err := root.KB.DeleteSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Deleted)
	assert.Equal(t, []string{"d2"}, summary.FailedIDs)

	docs := root.KB.Documents()
	require.Len(t, docs, 1, "only confirmed deletions are removed locally")
	assert.Equal(t, "d2", docs[0].ID)
	assert.False(t, root.KB.InSelection(), "completion exits bulk-select mode")
}

func TestUploadMixedOutcomes(t *testing.T) {
	backend := &fakeBackend{failPresign: []string{"bad.exe"}}
	root := newTestRoot(t, backend)

	outcomes, err := root.KB.Upload(context.Background(), []kb.FileUpload{
		{Name: "report.pdf", Type: "application/pdf", Content: strings.NewReader("pdf bytes")},
		{Name: "bad.exe", Type: "application/octet-stream", Content: strings.NewReader("nope")},
		{Name: "notes.txt", Type: "text/plain", Content: strings.NewReader("plain notes")},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, "docs/report.pdf", outcomes[0].Key)
	assert.ErrorContains(t, outcomes[1].Err, "unsupported file type")
	assert.NoError(t, outcomes[2].Err)

	// The denied file never reached storage; the others did, bytes intact.
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Len(t, backend.uploads, 2)
	assert.Equal(t, []byte("pdf bytes"), backend.uploads["report.pdf"])
	assert.Equal(t, []byte("plain notes"), backend.uploads["notes.txt"])
}

func TestREPLSession(t *testing.T) {
	root := newTestRoot(t, &fakeBackend{})

	script := strings.Join([]string{
		"/new",
		"Hello",
		"/chats",
		"/quit",
	}, "\n")
	var out bytes.Buffer

	code := newREPL(root, strings.NewReader(script), &out).run(context.Background())
	assert.Zero(t, code)

	text := out.String()
	assert.Contains(t, text, "You said: Hello")
	assert.Contains(t, text, "handbook.pdf")
	assert.Contains(t, text, "New Chat 1 (2 messages)")
}
