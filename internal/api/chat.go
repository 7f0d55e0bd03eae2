package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/ChiaYunhan/one-stop-chatbot/internal/errors"
	"github.com/ChiaYunhan/one-stop-chatbot/internal/model"
)

type chatRequest struct {
	Messages  []model.Message `json:"messages"`
	SessionID string          `json:"sessionId,omitempty"`
}

// chatResponse mirrors the backend envelope: transport success still
// carries an application-level statusCode that must be checked.
type chatResponse struct {
	StatusCode       int            `json:"statusCode"`
	Message          string         `json:"message"`
	AssistantMessage *model.Message `json:"assistantMessage"`
	SessionID        string         `json:"sessionId"`
}

// SendMessage submits the full message history plus the optional backend
// session token and returns the assistant's reply with the (possibly new)
// token. A 410 means the backend session expired and maps to
// apperrors.ErrSessionExpired; every other failure keeps the server's
// message when one is available.
func (c *Client) SendMessage(ctx context.Context, messages []model.Message, sessionID string) (*model.Message, string, error) {
	status, body, err := c.post(ctx, "/chat", chatRequest{Messages: messages, SessionID: sessionID})
	if err != nil {
		c.log.Error("chat request failed", zap.Error(err))
		return nil, "", err
	}

	if status == http.StatusGone {
		c.log.Warn("chat session expired", zap.String("session_id", sessionID))
		return nil, "", apperrors.ErrSessionExpired
	}
	if !is2xx(status) {
		httpErr := errorFromBody(status, body)
		c.log.Error("chat request rejected", zap.Int("status", status), zap.String("message", httpErr.Message))
		return nil, "", httpErr
	}

	var resp chatResponse
	if err := unmarshalBody(body, &resp); err != nil {
		c.log.Error("chat response malformed", zap.Error(err))
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{Status: resp.StatusCode, Message: resp.Message}
		c.log.Error("chat request failed in body", zap.Int("status", resp.StatusCode), zap.String("message", resp.Message))
		return nil, "", httpErr
	}
	if resp.AssistantMessage == nil {
		err := fmt.Errorf("chat response missing assistant message")
		c.log.Error("chat response malformed", zap.Error(err))
		return nil, "", err
	}

	msg := *resp.AssistantMessage
	if msg.Citation == nil {
		msg.Citation = []model.Citation{}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return &msg, resp.SessionID, nil
}
