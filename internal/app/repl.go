package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"

	apperrors "github.com/ChiaYunhan/one-stop-chatbot/internal/errors"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/kb"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
)

var (
	promptColor    = color.New(color.FgCyan, color.Bold)
	userColor      = color.New(color.FgGreen)
	assistantColor = color.New(color.FgWhite)
	citationColor  = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	infoColor      = color.New(color.FgBlue)
)

// repl is the line-oriented terminal frontend. All semantics live in the
// controllers; this loop only parses commands and prints state.
type repl struct {
	root *Root
	in   *bufio.Scanner
	out  io.Writer
}

func newREPL(root *Root, in io.Reader, out io.Writer) *repl {
	return &repl{root: root, in: bufio.NewScanner(in), out: out}
}

func (r *repl) run(ctx context.Context) int {
	infoColor.Fprintln(r.out, "one-stop-chatbot. /help for commands, /quit to exit.")
	r.showDocuments()

	for {
		r.prompt()
		if !r.in.Scan() {
			return 0
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.dispatch(ctx, line); quit {
				return 0
			}
			continue
		}

		if r.root.ActiveView() == model.ViewChat {
			r.send(ctx, line)
		} else {
			errorColor.Fprintln(r.out, "not in a chat: /chat to open one, /help for commands")
		}
	}
}

func (r *repl) prompt() {
	if r.root.ActiveView() == model.ViewChat {
		if active, ok := r.root.ActiveChat(); ok {
			promptColor.Fprintf(r.out, "[%s] > ", active.Title)
			return
		}
	}
	promptColor.Fprint(r.out, "[knowledge base] > ")
}

func (r *repl) dispatch(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.help()
	case "/new":
		session := r.root.NewChat()
		infoColor.Fprintf(r.out, "created %s\n", session.Title)
	case "/chats":
		r.showChats()
	case "/chat", "/switch":
		r.switchChat(args)
	case "/rename":
		r.renameChat(args)
	case "/delete":
		if r.root.ActiveView() == model.ViewChat {
			r.deleteChat(args)
		} else {
			r.deleteDocuments(ctx)
		}
	case "/kb":
		r.root.OpenKnowledgeBase()
		r.showDocuments()
	case "/docs":
		r.showDocuments()
	case "/refresh":
		if err := r.root.KB.Refresh(ctx); err != nil {
			r.printErr(err)
			break
		}
		r.showDocuments()
	case "/open":
		r.openDocument(ctx, args)
	case "/close":
		r.root.KB.ClosePreview()
	case "/download":
		r.downloadDocument(ctx, args)
	case "/select":
		r.root.KB.EnterSelection()
		infoColor.Fprintln(r.out, "bulk-select mode: /toggle N, /all, /delete, /cancel")
	case "/cancel":
		r.root.KB.ExitSelection()
	case "/toggle":
		r.toggleDocument(args)
	case "/all":
		r.root.KB.SelectAll()
		infoColor.Fprintf(r.out, "%d selected\n", len(r.root.KB.Selected()))
	case "/upload":
		r.upload(ctx, args)
	case "/sync":
		r.sync(ctx)
	default:
		errorColor.Fprintf(r.out, "unknown command %s\n", cmd)
	}
	return false
}

func (r *repl) help() {
	fmt.Fprintln(r.out, `chat:
  /new                start a new chat
  /chats              list chats
  /switch N           open chat N
  /rename N TITLE     retitle chat N
  /delete N           delete chat N (in chat view)
knowledge base:
  /kb                 open the knowledge-base pane
  /docs /refresh      show / reload the document list
  /open N  /close     preview document N / close the preview
  /download N         print a download link for document N
  /select /cancel     enter / leave bulk-select mode
  /toggle N  /all     toggle one / all documents
  /delete             delete the selection (in kb view)
  /upload PATH...     upload local files
  /sync               re-ingest the knowledge base
/quit                 exit`)
}

func (r *repl) send(ctx context.Context, content string) {
	active, ok := r.root.ActiveChat()
	if !ok {
		active = r.root.NewChat()
	}

	err := r.root.Chat.Send(ctx, active.ID, content)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) {
			errorColor.Fprintln(r.out, "this session expired, a fresh chat has been opened for you")
			return
		}
		r.printErr(err)
		return
	}

	if session, ok := r.root.ActiveChat(); ok && len(session.Messages) > 0 {
		r.printMessage(session.Messages[len(session.Messages)-1])
	}
}

func (r *repl) printMessage(msg model.Message) {
	switch msg.Role {
	case model.RoleUser:
		userColor.Fprintf(r.out, "you: %s\n", msg.Content)
	default:
		assistantColor.Fprintf(r.out, "assistant: %s\n", msg.Content)
		for _, c := range msg.Citation {
			citationColor.Fprintf(r.out, "  [%s] %s\n", c.File, c.Text)
		}
	}
}

func (r *repl) showChats() {
	chats := r.root.Chats()
	if len(chats) == 0 {
		infoColor.Fprintln(r.out, "no chats yet: /new to start one")
		return
	}
	activeID := ""
	if active, ok := r.root.ActiveChat(); ok {
		activeID = active.ID
	}
	for i, session := range chats {
		marker := " "
		if session.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %2d. %s (%d messages)\n", marker, i+1, session.Title, len(session.Messages))
	}
}

func (r *repl) switchChat(args []string) {
	session, ok := r.chatAt(args)
	if !ok {
		return
	}
	if err := r.root.SelectChat(session.ID); err != nil {
		r.printErr(err)
		return
	}
	for _, msg := range session.Messages {
		r.printMessage(msg)
	}
}

func (r *repl) renameChat(args []string) {
	if len(args) < 2 {
		errorColor.Fprintln(r.out, "usage: /rename N TITLE")
		return
	}
	session, ok := r.chatAt(args[:1])
	if !ok {
		return
	}
	if err := r.root.RenameChat(session.ID, strings.Join(args[1:], " ")); err != nil {
		r.printErr(err)
	}
}

func (r *repl) deleteChat(args []string) {
	session, ok := r.chatAt(args)
	if !ok {
		return
	}
	if err := r.root.DeleteChat(session.ID); err != nil {
		r.printErr(err)
		return
	}
	infoColor.Fprintf(r.out, "deleted %s\n", session.Title)
}

func (r *repl) chatAt(args []string) (model.ChatSession, bool) {
	chats := r.root.Chats()
	idx, err := index(args, len(chats))
	if err != nil {
		errorColor.Fprintln(r.out, err.Error())
		return model.ChatSession{}, false
	}
	return chats[idx], true
}

func (r *repl) showDocuments() {
	docs := r.root.KB.Documents()
	if len(docs) == 0 {
		infoColor.Fprintln(r.out, "knowledge base is empty: /upload to add documents")
		return
	}
	selected := make(map[string]bool)
	for _, doc := range r.root.KB.Selected() {
		selected[doc.ID] = true
	}
	for i, doc := range docs {
		marker := " "
		if selected[doc.ID] {
			marker = "x"
		}
		fmt.Fprintf(r.out, "[%s] %2d. %-40s %s\n", marker, i+1, doc.DisplayName, doc.Status)
	}
}

func (r *repl) docAt(args []string) (model.Document, bool) {
	docs := r.root.KB.Documents()
	idx, err := index(args, len(docs))
	if err != nil {
		errorColor.Fprintln(r.out, err.Error())
		return model.Document{}, false
	}
	return docs[idx], true
}

func (r *repl) openDocument(ctx context.Context, args []string) {
	doc, ok := r.docAt(args)
	if !ok {
		return
	}
	if r.root.KB.InSelection() {
		r.root.KB.Toggle(doc.ID)
		r.showDocuments()
		return
	}
	url, err := r.root.KB.Open(ctx, doc.ID)
	if err != nil {
		r.printErr(err)
		return
	}
	infoColor.Fprintf(r.out, "viewing %s: %s\n", doc.DisplayName, url)
}

func (r *repl) downloadDocument(ctx context.Context, args []string) {
	doc, ok := r.docAt(args)
	if !ok {
		return
	}
	url, err := r.root.KB.DownloadLinkFor(ctx, doc.ID)
	if err != nil {
		r.printErr(err)
		return
	}
	infoColor.Fprintf(r.out, "download %s: %s\n", doc.DisplayName, url)
}

func (r *repl) toggleDocument(args []string) {
	if !r.root.KB.InSelection() {
		errorColor.Fprintln(r.out, "/select first to enter bulk-select mode")
		return
	}
	doc, ok := r.docAt(args)
	if !ok {
		return
	}
	r.root.KB.Toggle(doc.ID)
	infoColor.Fprintf(r.out, "%d selected\n", len(r.root.KB.Selected()))
}

func (r *repl) deleteDocuments(ctx context.Context) {
	msg := r.root.KB.ConfirmMessage()
	if msg == "" {
		errorColor.Fprintln(r.out, "nothing selected: /select then /toggle N first")
		return
	}
	fmt.Fprintf(r.out, "%s [y/N] ", msg)
	if !r.in.Scan() || !strings.EqualFold(strings.TrimSpace(r.in.Text()), "y") {
		infoColor.Fprintln(r.out, "cancelled")
		return
	}

	summary, err := r.root.KB.DeleteSelected(ctx)
	if err != nil {
		r.printErr(err)
		return
	}
	infoColor.Fprintf(r.out, "%d document(s) deleted\n", summary.Deleted)
	if len(summary.FailedIDs) > 0 {
		errorColor.Fprintf(r.out, "%d document(s) failed to delete\n", len(summary.FailedIDs))
	}
	r.showDocuments()
}

func (r *repl) upload(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		errorColor.Fprintln(r.out, "usage: /upload PATH...")
		return
	}

	var files []kb.FileUpload
	var handles []*os.File
	defer func() {
		for _, f := range handles {
			_ = f.Close()
		}
	}()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			r.printErr(err)
			return
		}
		handles = append(handles, f)
		files = append(files, kb.FileUpload{
			Name:    filepath.Base(path),
			Type:    mimeTypeFor(path),
			Content: f,
		})
	}

	outcomes, err := r.root.KB.Upload(ctx, files)
	if err != nil {
		r.printErr(err)
		return
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			errorColor.Fprintf(r.out, "%s: %v\n", outcome.FileName, outcome.Err)
		} else {
			infoColor.Fprintf(r.out, "%s: uploaded as %s\n", outcome.FileName, outcome.Key)
		}
	}
	infoColor.Fprintln(r.out, "run /sync to make new documents searchable")
}

func (r *repl) sync(ctx context.Context) {
	job, err := r.root.KB.Sync(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrSyncInProgress) {
			errorColor.Fprintln(r.out, "a sync is already in progress, try again later")
			return
		}
		r.printErr(err)
		return
	}
	infoColor.Fprintf(r.out, "sync started, job %s (%s)\n", job.IngestionJobID, job.Status)
}

func (r *repl) printErr(err error) {
	errorColor.Fprintf(r.out, "error: %v\n", err)
}

func index(args []string, length int) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected a single item number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > length {
		return 0, fmt.Errorf("no item %s", args[0])
	}
	return n - 1, nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
