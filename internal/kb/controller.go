// Package kb manages the knowledge-base pane: the document list, the two
// interaction modes (browse vs bulk-select), the preview link, and the
// upload, delete and sync flows.
package kb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ChiaYunhan/one-stop-chatbot/internal/api"
	apperrors "github.com/ChiaYunhan/one-stop-chatbot/internal/errors"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
)

// Backend is the slice of the API client the knowledge-base pane needs.
type Backend interface {
	ListDocuments(ctx context.Context) ([]model.Document, error)
	UploadTargets(ctx context.Context, files []api.FileSpec) ([]api.UploadTarget, error)
	UploadFile(ctx context.Context, target api.UploadTarget, r io.Reader) error
	DownloadLink(ctx context.Context, doc model.Document, action string) (string, error)
	DeleteDocuments(ctx context.Context, docs []model.Document) (*api.DeleteResult, error)
	Sync(ctx context.Context) (*api.SyncJob, error)
}

// FileUpload is one local file queued for upload.
type FileUpload struct {
	Name    string
	Type    string
	Content io.Reader
}

// UploadOutcome is the per-file result of an upload batch. One file's
// failure never rolls back or aborts the others.
type UploadOutcome struct {
	FileName string
	Key      string
	Err      error
}

// DeleteSummary reports a bulk delete that completed, possibly with
// per-item failures.
type DeleteSummary struct {
	Deleted   int
	FailedIDs []string
	Message   string
}

// Controller owns the document list and all knowledge-base state. The
// list is refreshed wholesale from the backend; the only local mutation
// is removing documents the backend confirmed deleted.
type Controller struct {
	client Backend
	log    *zap.Logger
	links  *gocache.Cache

	deleting atomic.Bool

	mu            sync.Mutex
	documents     []model.Document
	selectionMode bool
	selected      []model.Document
	previewID     string
	previewURL    string
	previewCancel context.CancelFunc
}

func NewController(client Backend, linkTTL time.Duration, log *zap.Logger) *Controller {
	return &Controller{
		client: client,
		log:    log,
		links:  gocache.New(linkTTL, 2*linkTTL),
	}
}

// Refresh replaces the document list with the backend's current view.
func (c *Controller) Refresh(ctx context.Context) error {
	docs, err := c.client.ListDocuments(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.documents = docs
	c.log.Info("document list refreshed", zap.Int("count", len(docs)))
	return nil
}

// Documents returns the current list in backend order.
func (c *Controller) Documents() []model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Document, len(c.documents))
	copy(out, c.documents)
	return out
}

// InSelection reports whether bulk-select mode is active.
func (c *Controller) InSelection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectionMode
}

// EnterSelection switches to bulk-select mode with an empty selection.
func (c *Controller) EnterSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectionMode = true
	c.selected = nil
}

// ExitSelection leaves bulk-select mode, clearing the selection.
func (c *Controller) ExitSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectionMode = false
	c.selected = nil
}

// Toggle flips a document's membership in the selection set. Unknown ids
// are ignored, mirroring a click on a row that just disappeared.
func (c *Controller) Toggle(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selectionMode {
		return
	}

	for i, doc := range c.selected {
		if doc.ID == id {
			c.selected = append(c.selected[:i], c.selected[i+1:]...)
			return
		}
	}
	for _, doc := range c.documents {
		if doc.ID == id {
			c.selected = append(c.selected, doc)
			return
		}
	}
}

// SelectAll toggles between everything selected and nothing selected,
// based on whether the selection already covers the whole list.
func (c *Controller) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selectionMode {
		return
	}

	if len(c.selected) == len(c.documents) {
		c.selected = nil
		return
	}
	c.selected = make([]model.Document, len(c.documents))
	copy(c.selected, c.documents)
}

// Selected returns the selection in click order.
func (c *Controller) Selected() []model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Document, len(c.selected))
	copy(out, c.selected)
	return out
}

// ConfirmMessage names the selected document(s) for the delete prompt.
func (c *Controller) ConfirmMessage() string {
	selected := c.Selected()
	switch len(selected) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Are you sure you want to delete %q?", selected[0].DisplayName)
	default:
		names := make([]string, len(selected))
		for i, doc := range selected {
			names[i] = doc.DisplayName
		}
		return fmt.Sprintf("Are you sure you want to delete %d documents?\n\n%s",
			len(selected), strings.Join(names, "\n"))
	}
}

// DeleteSelected sends the selected records to the delete endpoint and
// reconciles local state by diffing against the response's failed-id
// list, not by trusting the blanket success flag. On completion, full or
// partial, selection mode ends and the selection clears; a transport
// failure leaves the selection intact for retry.
func (c *Controller) DeleteSelected(ctx context.Context) (*DeleteSummary, error) {
	selected := c.Selected()
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: nothing selected", apperrors.ErrValidation)
	}
	if !c.deleting.CompareAndSwap(false, true) {
		return nil, apperrors.ErrBusy
	}
	defer c.deleting.Store(false)

	result, err := c.client.DeleteDocuments(ctx, selected)
	if err != nil {
		return nil, err
	}

	failed := make(map[string]bool, len(result.FailedIDs))
	for _, id := range result.FailedIDs {
		failed[id] = true
	}
	deleted := make(map[string]bool, len(selected))
	for _, doc := range selected {
		if !failed[doc.ID] {
			deleted[doc.ID] = true
		}
	}

	c.mu.Lock()
	kept := c.documents[:0]
	for _, doc := range c.documents {
		if !deleted[doc.ID] {
			kept = append(kept, doc)
		}
	}
	c.documents = kept
	if deleted[c.previewID] {
		c.closePreviewLocked()
	}
	c.selectionMode = false
	c.selected = nil
	c.mu.Unlock()

	c.log.Info("documents deleted",
		zap.Int("deleted", len(deleted)),
		zap.Int("failed", len(result.FailedIDs)))

	return &DeleteSummary{
		Deleted:   len(deleted),
		FailedIDs: result.FailedIDs,
		Message:   result.Message,
	}, nil
}

// Upload requests one presigned target per file, then pushes each file to
// its target concurrently. Outcomes are reported per file in input order.
func (c *Controller) Upload(ctx context.Context, files []FileUpload) ([]UploadOutcome, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files selected", apperrors.ErrValidation)
	}

	specs := make([]api.FileSpec, len(files))
	for i, f := range files {
		specs[i] = api.FileSpec{FileName: f.Name, FileType: f.Type}
	}
	targets, err := c.client.UploadTargets(ctx, specs)
	if err != nil {
		return nil, err
	}

	outcomes := make([]UploadOutcome, len(files))
	var wg sync.WaitGroup
	for i := range files {
		if i >= len(targets) {
			outcomes[i] = UploadOutcome{FileName: files[i].Name, Err: fmt.Errorf("no upload target returned")}
			continue
		}
		target := targets[i]
		if !target.Success {
			outcomes[i] = UploadOutcome{FileName: files[i].Name, Err: fmt.Errorf("presign failed: %s", target.Error)}
			continue
		}

		wg.Add(1)
		go func(i int, target api.UploadTarget, file FileUpload) {
			defer wg.Done()
			if err := c.client.UploadFile(ctx, target, file.Content); err != nil {
				outcomes[i] = UploadOutcome{FileName: file.Name, Err: err}
				return
			}
			outcomes[i] = UploadOutcome{FileName: file.Name, Key: target.Key}
		}(i, target, files[i])
	}
	wg.Wait()

	var failures int
	for _, o := range outcomes {
		if o.Err != nil {
			failures++
		}
	}
	c.log.Info("upload batch finished", zap.Int("files", len(files)), zap.Int("failures", failures))
	return outcomes, nil
}

// Open previews a document in browse mode: any in-flight link fetch is
// aborted, and a response that arrives after the selection moved on is
// dropped instead of being applied to the wrong document. Links are
// cached until shortly before their presign expiry.
func (c *Controller) Open(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	var doc model.Document
	found := false
	for _, d := range c.documents {
		if d.ID == id {
			doc, found = d, true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return "", apperrors.ErrNotFound
	}
	if c.previewCancel != nil {
		c.previewCancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.previewCancel = cancel
	c.previewID = id
	c.previewURL = ""
	c.mu.Unlock()

	if cached, ok := c.links.Get(id); ok {
		url := cached.(string)
		cancel()
		if !c.applyPreview(id, url) {
			return "", context.Canceled
		}
		return url, nil
	}

	url, err := c.client.DownloadLink(fetchCtx, doc, api.ActionView)
	cancel()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Selection changed or the pane was torn down mid-fetch.
			return "", err
		}
		return "", err
	}

	c.links.Set(id, url, gocache.DefaultExpiration)
	if !c.applyPreview(id, url) {
		return "", context.Canceled
	}
	return url, nil
}

// applyPreview stores the fetched link only if the document is still the
// one being previewed.
func (c *Controller) applyPreview(id, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.previewID != id {
		return false
	}
	c.previewURL = url
	return true
}

// Preview returns the previewed document id and its link, when loaded.
func (c *Controller) Preview() (id, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewID, c.previewURL
}

// ClosePreview aborts any in-flight link fetch and clears the pane.
func (c *Controller) ClosePreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closePreviewLocked()
}

func (c *Controller) closePreviewLocked() {
	if c.previewCancel != nil {
		c.previewCancel()
		c.previewCancel = nil
	}
	c.previewID = ""
	c.previewURL = ""
}

// DownloadLinkFor returns a download-action link for the document.
func (c *Controller) DownloadLinkFor(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	var doc model.Document
	found := false
	for _, d := range c.documents {
		if d.ID == id {
			doc, found = d, true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return "", apperrors.ErrNotFound
	}
	return c.client.DownloadLink(ctx, doc, api.ActionDownload)
}

// Sync asks the backend to re-ingest the knowledge base. A conflict with
// an already-running job surfaces as apperrors.ErrSyncInProgress.
func (c *Controller) Sync(ctx context.Context) (*api.SyncJob, error) {
	job, err := c.client.Sync(ctx)
	if err != nil {
		return nil, err
	}
	c.log.Info("knowledge base sync started",
		zap.String("job_id", job.IngestionJobID), zap.String("status", job.Status))
	return job, nil
}
