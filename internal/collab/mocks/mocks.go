// Package mocks provides test doubles for the collab interfaces.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	collab "github.com/enel-control/enel-cli/internal/collab"
	model "github.com/enel-control/enel-cli/internal/model"
)

// MockMailbox is a mock type for the Mailbox interface.
type MockMailbox struct {
	mock.Mock
}

// ListCandidateMessages provides a mock function with given fields: ctx, filter
func (_m *MockMailbox) ListCandidateMessages(ctx context.Context, filter collab.MessageFilter) ([]collab.Message, error) {
	ret := _m.Called(ctx, filter)

	if len(ret) == 0 {
		panic("no return value specified for ListCandidateMessages")
	}

	var r0 []collab.Message
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]collab.Message)
	}
	return r0, ret.Error(1)
}

// ListAttachments provides a mock function with given fields: ctx, messageID
func (_m *MockMailbox) ListAttachments(ctx context.Context, messageID string) ([]collab.AttachmentRef, error) {
	ret := _m.Called(ctx, messageID)

	if len(ret) == 0 {
		panic("no return value specified for ListAttachments")
	}

	var r0 []collab.AttachmentRef
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]collab.AttachmentRef)
	}
	return r0, ret.Error(1)
}

// FetchAttachment provides a mock function with given fields: ctx, messageID, attachmentID
func (_m *MockMailbox) FetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	ret := _m.Called(ctx, messageID, attachmentID)

	if len(ret) == 0 {
		panic("no return value specified for FetchAttachment")
	}

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// MockBlobStore is a mock type for the BlobStore interface.
type MockBlobStore struct {
	mock.Mock
}

// Read provides a mock function with given fields: ctx, path
func (_m *MockBlobStore) Read(ctx context.Context, path string) ([]byte, error) {
	ret := _m.Called(ctx, path)

	if len(ret) == 0 {
		panic("no return value specified for Read")
	}

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// Write provides a mock function with given fields: ctx, path, data
func (_m *MockBlobStore) Write(ctx context.Context, path string, data []byte) error {
	ret := _m.Called(ctx, path, data)

	if len(ret) == 0 {
		panic("no return value specified for Write")
	}
	return ret.Error(0)
}

// Rename provides a mock function with given fields: ctx, path, newName
func (_m *MockBlobStore) Rename(ctx context.Context, path, newName string) error {
	ret := _m.Called(ctx, path, newName)

	if len(ret) == 0 {
		panic("no return value specified for Rename")
	}
	return ret.Error(0)
}

// List provides a mock function with given fields: ctx, path
func (_m *MockBlobStore) List(ctx context.Context, path string) ([]collab.BlobEntry, error) {
	ret := _m.Called(ctx, path)

	if len(ret) == 0 {
		panic("no return value specified for List")
	}

	var r0 []collab.BlobEntry
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]collab.BlobEntry)
	}
	return r0, ret.Error(1)
}

// MockMessenger is a mock type for the Messenger interface.
type MockMessenger struct {
	mock.Mock
}

// SendText provides a mock function with given fields: ctx, recipientID, text
func (_m *MockMessenger) SendText(ctx context.Context, recipientID, text string) error {
	ret := _m.Called(ctx, recipientID, text)

	if len(ret) == 0 {
		panic("no return value specified for SendText")
	}
	return ret.Error(0)
}

// SendDocument provides a mock function with given fields: ctx, recipientID, caption, data, filename
func (_m *MockMessenger) SendDocument(ctx context.Context, recipientID, caption string, data []byte, filename string) error {
	ret := _m.Called(ctx, recipientID, caption, data, filename)

	if len(ret) == 0 {
		panic("no return value specified for SendDocument")
	}
	return ret.Error(0)
}

// MockRecipientDirectory is a mock type for the RecipientDirectory interface.
type MockRecipientDirectory struct {
	mock.Mock
}

// RecipientsFor provides a mock function with given fields: ctx, key
func (_m *MockRecipientDirectory) RecipientsFor(ctx context.Context, key string) ([]model.Recipient, error) {
	ret := _m.Called(ctx, key)

	if len(ret) == 0 {
		panic("no return value specified for RecipientsFor")
	}

	var r0 []model.Recipient
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Recipient)
	}
	return r0, ret.Error(1)
}

// Admins provides a mock function with given fields: ctx
func (_m *MockRecipientDirectory) Admins(ctx context.Context) ([]model.Recipient, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Admins")
	}

	var r0 []model.Recipient
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Recipient)
	}
	return r0, ret.Error(1)
}

// MockCredential is a mock type for the Credential interface.
type MockCredential struct {
	mock.Mock
}

// BearerToken provides a mock function with given fields: ctx
func (_m *MockCredential) BearerToken(ctx context.Context) (string, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for BearerToken")
	}
	return ret.String(0), ret.Error(1)
}
