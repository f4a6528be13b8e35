package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/faeln1/go-mockup-api/internal/domain/design"
	"github.com/faeln1/go-mockup-api/pkg/storage"
)

const MaxAssetSize = 10 << 20

var (
	ErrStorageDisabled = errors.New("object storage not configured")
	ErrAssetTooLarge   = errors.New("asset exceeds 10 MiB")
)

type Asset struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type AssetService interface {
	Upload(ctx context.Context, designID design.ID, filename, contentType string, body io.Reader, size int64) (*Asset, error)
}

type assetService struct {
	designs DesignService
	storage storage.Service
}

func NewAssetService(designs DesignService, store storage.Service) AssetService {
	return &assetService{designs: designs, storage: store}
}

func (s *assetService) Upload(ctx context.Context, designID design.ID, filename, contentType string, body io.Reader, size int64) (*Asset, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	if size > MaxAssetSize {
		return nil, ErrAssetTooLarge
	}
	if _, err := s.designs.GetDesign(ctx, designID); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 {
		ext = ""
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := storage.DesignKey(string(designID), storage.KindAsset, uuid.NewString()+ext)
	url, err := s.storage.PutObject(ctx, storage.UploadInput{Key: key, ContentType: contentType, Body: body, Size: size})
	if err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}
	return &Asset{Key: key, URL: url, ContentType: contentType, Size: size}, nil
}
