// Package storage is the object store behind design assets and AI-generated
// images. Objects of one design share the designs/<id>/ prefix so a bucket
// can be browsed or expired per design.
package storage

import (
	"context"
	"io"
	"path"
)

// Object kinds under a design's prefix.
const (
	KindAsset     = "assets"
	KindGenerated = "generated"
)

// DesignKey is the object key of name stored as kind for designID.
func DesignKey(designID, kind, name string) string {
	return path.Join("designs", designID, kind, name)
}

type UploadInput struct {
	Key         string
	ContentType string
	Body        io.Reader
	Size        int64
}

// Service stores uploads and returns the public URL clients load them from.
type Service interface {
	PutObject(ctx context.Context, in UploadInput) (string, error)
	// DeleteObject removes key. It is used to roll back an image whose
	// version could not be saved.
	DeleteObject(ctx context.Context, key string) error
}
