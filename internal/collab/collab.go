// Package collab defines the interfaces the reconciliation core uses to reach
// external systems: mailbox, blob storage, credentials, messaging and the
// recipient directory.
package collab

import (
	"context"
	"errors"
	"time"

	"github.com/enel-control/enel-cli/internal/model"
)

// ErrNotFound is returned by BlobStore.Read when the path does not exist.
var ErrNotFound = errors.New("collab: not found")

// MessageFilter narrows the candidate messages.
type MessageFilter struct {
	Since               time.Time
	Until               time.Time
	SenderContains      string
	SubjectContains     string
	OnlyWithAttachments bool
	Limit               int
}

// Message is a candidate invoice email.
type Message struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	ReceivedAt    time.Time `json:"received_at"`
	HasAttachment bool      `json:"has_attachment"`
}

// AttachmentRef identifies one attachment on a message.
type AttachmentRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Mailbox lists invoice emails and downloads their attachments.
type Mailbox interface {
	ListCandidateMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
	ListAttachments(ctx context.Context, messageID string) ([]AttachmentRef, error)
	FetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// BlobEntry is one item returned by BlobStore.List.
type BlobEntry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsFolder bool      `json:"is_folder"`
	Modified time.Time `json:"modified"`
}

// BlobStore is path-addressed file storage. Paths are relative to the store root.
type BlobStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Rename(ctx context.Context, path, newName string) error
	List(ctx context.Context, path string) ([]BlobEntry, error)
}

// Credential yields a valid bearer token, refreshing as needed.
type Credential interface {
	BearerToken(ctx context.Context) (string, error)
}

// Messenger delivers text and documents to a recipient.
type Messenger interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendDocument(ctx context.Context, recipientID, caption string, data []byte, filename string) error
}

// RecipientDirectory resolves who is notified for a unit.
type RecipientDirectory interface {
	RecipientsFor(ctx context.Context, key string) ([]model.Recipient, error)
	Admins(ctx context.Context) ([]model.Recipient, error)
}
