package receiving

import (
	"context"
	"time"
)

// ExportStorage stores published export documents and hands out
// download references for them.
type ExportStorage interface {
	EnsureBucket(ctx context.Context) error
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}
