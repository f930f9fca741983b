package syncer

import (
	"context"
	"fmt"
	"path"

	"github.com/klinikos/medsync/internal/filex"
	"github.com/klinikos/medsync/internal/netx"
)

// UploadAttachment stages attachment bytes (a scan, a signed report) in the
// shared object store via a presigned PUT and returns the storage key to
// embed in the lab-result payload.
func (s *Syncer) UploadAttachment(ctx context.Context, data []byte) (string, error) {
	presigned, err := s.client.PresignPut(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, presigned.URL, data); err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return presigned.Key, nil
}

// FetchAttachment downloads attachment bytes by storage key.
func (s *Syncer) FetchAttachment(ctx context.Context, key string) ([]byte, error) {
	presigned, err := s.client.PresignGet(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}
	data, err := netx.DownloadFromPresignedURL(ctx, presigned.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	return data, nil
}

// ExportAttachment fetches an attachment and stages it under dirName in the
// working directory, named after the last element of its storage key. Used
// when staff need the file on disk (printing, external viewers).
func (s *Syncer) ExportAttachment(ctx context.Context, key, dirName string) (string, error) {
	data, err := s.FetchAttachment(ctx, key)
	if err != nil {
		return "", err
	}

	dir, err := filex.EnsureSubDir(dirName)
	if err != nil {
		return "", fmt.Errorf("failed to prepare export dir: %w", err)
	}

	return filex.SaveFile(dir, path.Base(key), data)
}
