// Package blobstore hosts avatar and cover-image files on an external
// object store. The service layer depends only on the Uploader contract;
// the MinIO client lives behind it.
package blobstore

import "context"

// Uploader pushes a local file to durable storage and returns its public
// URL. Upload failures are not retried here; the caller is responsible
// for removing the local temporary file whatever the outcome.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
