package errors

import "errors"

// This package defines the sentinel errors shared across the client.
// Controllers classify failures with errors.Is() instead of inspecting
// HTTP status codes, which stay confined to the api package.

var (
	// ErrSessionExpired signifies that the backend no longer recognizes the
	// conversation's session token (HTTP 410 on /chat). The chat pane
	// disables input and the root rotates to a fresh session.
	ErrSessionExpired = errors.New("chat session expired")

	// ErrSyncInProgress signifies that an ingestion job is already running
	// (HTTP 409 on /documents/sync).
	ErrSyncInProgress = errors.New("knowledge base sync already in progress")

	// ErrNotFound signifies that a referenced chat or document does not
	// exist locally.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that user-supplied input failed a business
	// rule before any network call was made.
	ErrValidation = errors.New("validation failed")

	// ErrBusy signifies that an operation was rejected because an
	// equivalent one is still in flight. Requests are never queued.
	ErrBusy = errors.New("request already in flight")
)
