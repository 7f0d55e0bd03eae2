package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/ChiaYunhan/one-stop-chatbot/internal/errors"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
)

// FileSpec names one file to request an upload target for.
type FileSpec struct {
	FileName string `json:"fileName" validate:"required"`
	FileType string `json:"fileType"`
}

// UploadTarget is the per-file result of a presign request. A failed
// presign for one file is reported here, not as a request-level error.
type UploadTarget struct {
	FileName string            `json:"fileName"`
	Success  bool              `json:"success"`
	URL      string            `json:"url,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Key      string            `json:"key,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// DeleteResult reports a bulk delete. FailedIDs lists the documents the
// backend could not remove; callers diff against it rather than trusting
// the blanket Success flag.
type DeleteResult struct {
	Success      bool     `json:"success"`
	DeletedCount int      `json:"deletedCount"`
	FailedIDs    []string `json:"failedIds"`
	Message      string   `json:"message"`
}

// SyncJob describes the ingestion job the backend started.
type SyncJob struct {
	IngestionJobID string `json:"ingestionJobId"`
	Status         string `json:"status"`
	StartedAt      string `json:"startedAt"`
}

type listDocumentsResponse struct {
	StatusCode      int              `json:"statusCode"`
	Message         string           `json:"message"`
	DocumentDetails []model.Document `json:"documentDetails"`
	// NextToken is accepted but unused: the document list is refreshed
	// wholesale, never paged incrementally.
	NextToken string `json:"nextToken"`
}

// ListDocuments fetches the full knowledge-base document list.
func (c *Client) ListDocuments(ctx context.Context) ([]model.Document, error) {
	status, body, err := c.post(ctx, "/documents/list", nil)
	if err != nil {
		c.log.Error("list documents failed", zap.Error(err))
		return nil, err
	}
	if !is2xx(status) {
		httpErr := errorFromBody(status, body)
		c.log.Error("list documents rejected", zap.Int("status", status), zap.String("message", httpErr.Message))
		return nil, httpErr
	}

	var resp listDocumentsResponse
	if err := unmarshalBody(body, &resp); err != nil {
		c.log.Error("list documents response malformed", zap.Error(err))
		return nil, err
	}
	if resp.DocumentDetails == nil {
		return []model.Document{}, nil
	}
	return resp.DocumentDetails, nil
}

type uploadTargetsRequest struct {
	Files []FileSpec `json:"files"`
}

type uploadTargetsResponse struct {
	StatusCode int            `json:"statusCode"`
	Message    string         `json:"message"`
	Results    []UploadTarget `json:"results"`
}

// UploadTargets requests one presigned upload target per file.
func (c *Client) UploadTargets(ctx context.Context, files []FileSpec) ([]UploadTarget, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to upload", apperrors.ErrValidation)
	}
	for _, f := range files {
		if err := validateRequest(f); err != nil {
			return nil, err
		}
	}

	status, body, err := c.post(ctx, "/documents/uploadpresignedurl", uploadTargetsRequest{Files: files})
	if err != nil {
		c.log.Error("upload presign failed", zap.Error(err))
		return nil, err
	}
	if !is2xx(status) {
		httpErr := errorFromBody(status, body)
		c.log.Error("upload presign rejected", zap.Int("status", status), zap.String("message", httpErr.Message))
		return nil, httpErr
	}

	var resp uploadTargetsResponse
	if err := unmarshalBody(body, &resp); err != nil {
		c.log.Error("upload presign response malformed", zap.Error(err))
		return nil, err
	}
	return resp.Results, nil
}

// UploadFile pushes one file's bytes to its presigned target as a
// multipart form: the presign fields first, the file part last.
func (c *Client) UploadFile(ctx context.Context, target UploadTarget, r io.Reader) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range target.Fields {
		if err := w.WriteField(key, value); err != nil {
			return fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", target.FileName)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copy file contents: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &buf)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Error("file upload failed", zap.String("file", target.FileName), zap.Error(err))
		return fmt.Errorf("upload %s: %w", target.FileName, err)
	}
	defer resp.Body.Close()
	if !is2xx(resp.StatusCode) {
		body, _ := io.ReadAll(resp.Body)
		httpErr := errorFromBody(resp.StatusCode, body)
		c.log.Error("file upload rejected", zap.String("file", target.FileName), zap.Int("status", resp.StatusCode))
		return httpErr
	}
	return nil
}

const (
	ActionView     = "view"
	ActionDownload = "download"
)

type downloadLinkRequest struct {
	S3Key  string `json:"s3Key"`
	Action string `json:"action"`
}

type downloadLinkResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	URL        string `json:"url"`
}

// DownloadLink requests a short-lived presigned link for the document.
// The context is honoured mid-flight: the preview pane cancels this call
// when the selection changes before the link arrives.
func (c *Client) DownloadLink(ctx context.Context, doc model.Document, action string) (string, error) {
	status, body, err := c.post(ctx, "/documents/downloadpresignedurl", downloadLinkRequest{S3Key: doc.S3Key, Action: action})
	if err != nil {
		// Cancellation is expected here; don't shout about it.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.Error("download link failed", zap.String("s3_key", doc.S3Key), zap.Error(err))
		return "", err
	}
	if !is2xx(status) {
		httpErr := errorFromBody(status, body)
		c.log.Error("download link rejected", zap.Int("status", status), zap.String("message", httpErr.Message))
		return "", httpErr
	}

	var resp downloadLinkResponse
	if err := unmarshalBody(body, &resp); err != nil {
		c.log.Error("download link response malformed", zap.Error(err))
		return "", err
	}
	if resp.URL == "" {
		err := fmt.Errorf("download link response missing url")
		c.log.Error("download link response malformed", zap.Error(err))
		return "", err
	}
	return resp.URL, nil
}

type deleteDocumentsRequest struct {
	Documents []model.Document `json:"documents"`
}

// DeleteDocuments asks the backend to remove the given documents. The
// full records are sent; the backend needs status and key, not just ids.
func (c *Client) DeleteDocuments(ctx context.Context, docs []model.Document) (*DeleteResult, error) {
	status, body, err := c.post(ctx, "/documents/delete", deleteDocumentsRequest{Documents: docs})
	if err != nil {
		c.log.Error("delete documents failed", zap.Error(err))
		return nil, err
	}
	if !is2xx(status) {
		httpErr := errorFromBody(status, body)
		c.log.Error("delete documents rejected", zap.Int("status", status), zap.String("message", httpErr.Message))
		return nil, httpErr
	}

	var resp DeleteResult
	if err := unmarshalBody(body, &resp); err != nil {
		c.log.Error("delete documents response malformed", zap.Error(err))
		return nil, err
	}
	if resp.FailedIDs == nil {
		resp.FailedIDs = []string{}
	}
	return &resp, nil
}

// Sync triggers a knowledge-base re-ingestion. A 409 means a job is
// already running and maps to apperrors.ErrSyncInProgress.
func (c *Client) Sync(ctx context.Context) (*SyncJob, error) {
	status, body, err := c.post(ctx, "/documents/sync", nil)
	if err != nil {
		c.log.Error("sync request failed", zap.Error(err))
		return nil, err
	}
	if status == http.StatusConflict {
		c.log.Warn("sync already in progress")
		return nil, apperrors.ErrSyncInProgress
	}
	if !is2xx(status) {
		httpErr := errorFromBody(status, body)
		c.log.Error("sync rejected", zap.Int("status", status), zap.String("message", httpErr.Message))
		return nil, httpErr
	}

	var job SyncJob
	if err := unmarshalBody(body, &job); err != nil {
		c.log.Error("sync response malformed", zap.Error(err))
		return nil, err
	}
	return &job, nil
}
