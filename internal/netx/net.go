// Package netx contains small HTTP helpers for moving attachment bytes
// through S3-compatible presigned URLs.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadToPresignedURL PUTs file to a presigned URL.
func UploadToPresignedURL(ctx context.Context, url string, file []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(file))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// DownloadFromPresignedURL GETs the contents behind a presigned URL.
func DownloadFromPresignedURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}
	return io.ReadAll(resp.Body)
}
