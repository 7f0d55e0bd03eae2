package model

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// View identifies which top-level pane the application is showing.
type View string

const (
	ViewKnowledgeBase View = "knowledgeBase"
	ViewChat          View = "chat"
)

// Citation points at the source document backing an assistant statement.
type Citation struct {
	Text string `json:"text"`
	File string `json:"file"`
}

// Message is a single entry in a chat transcript. Messages are immutable
// once appended; ordering is append order.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citation  []Citation `json:"citation,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChatSession is one user-visible conversation thread. SessionID is the
// backend-assigned correlation token, set once the first assistant reply
// arrives; it is distinct from the client-local ID.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	SessionID string    `json:"sessionId,omitempty"`
}

// DocumentStatus is the backend-driven ingestion lifecycle state of a
// knowledge-base document. The client only observes transitions through
// wholesale refresh, never through push.
type DocumentStatus string

const (
	StatusIndexed                  DocumentStatus = "INDEXED"
	StatusPartiallyIndexed         DocumentStatus = "PARTIALLY_INDEXED"
	StatusPending                  DocumentStatus = "PENDING"
	StatusFailed                   DocumentStatus = "FAILED"
	StatusMetadataPartiallyIndexed DocumentStatus = "METADATA_PARTIALLY_INDEXED"
	StatusMetadataUpdateFailed     DocumentStatus = "METADATA_UPDATE_FAILED"
	StatusIgnored                  DocumentStatus = "IGNORED"
	StatusNotFound                 DocumentStatus = "NOT_FOUND"
	StatusStarting                 DocumentStatus = "STARTING"
	StatusInProgress               DocumentStatus = "IN_PROGRESS"
	StatusDeleting                 DocumentStatus = "DELETING"
	StatusDeleteInProgress         DocumentStatus = "DELETE_IN_PROGRESS"
	StatusNotIndexed               DocumentStatus = "NOT_INDEXED"
)

// Indexed reports whether the document is available to the assistant.
func (s DocumentStatus) Indexed() bool {
	return s == StatusIndexed || s == StatusPartiallyIndexed
}

// Deleting reports whether the document is being removed by the backend.
func (s DocumentStatus) Deleting() bool {
	return s == StatusDeleting || s == StatusDeleteInProgress
}

// Document is one knowledge-base source document as reported by the
// backend. Documents are created by the ingestion pipeline, never by this
// client; the client only lists and deletes them.
type Document struct {
	ID              string         `json:"id"`
	KnowledgeBaseID string         `json:"knowledgeBaseId"`
	DataSourceID    string         `json:"dataSourceId"`
	Status          DocumentStatus `json:"status"`
	S3Key           string         `json:"s3Key"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	DisplayName     string         `json:"displayName"`
	StatusReason    string         `json:"statusReason"`
}
