package service

import (
	"context"
	"io"

	"chatsync/internal/domain/entity"
)

// BlobStore is the attachment upload collaborator. The core only consumes
// the returned url/size/type; retention of orphaned blobs from failed sends
// is out of scope.
type BlobStore interface {
	UploadAttachment(ctx context.Context, chatID, messageID, filename, mimeType string, file io.Reader) (*entity.Attachment, error)
	Delete(ctx context.Context, fileURL string) error
	Close() error
}
