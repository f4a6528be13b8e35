package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/faeln1/go-mockup-api/internal/domain/design"
	"github.com/faeln1/go-mockup-api/internal/platform/ai"
	"github.com/faeln1/go-mockup-api/pkg/logger"
	"github.com/faeln1/go-mockup-api/pkg/storage"
)

var ErrGenerationDisabled = errors.New("no ai provider configured")

type GenerationService interface {
	Generate(ctx context.Context, designID design.ID, authorID string, in design.GenerateInput) (*design.Version, error)
}

type generationService struct {
	designs   DesignService
	providers *ai.Registry
	storage   storage.Service
	log       logger.Logger
}

// NewGenerationService wires prompt generation. storage may be nil, in which
// case generated images are discarded and only elements are kept.
func NewGenerationService(designs DesignService, providers *ai.Registry, store storage.Service, log logger.Logger) GenerationService {
	if log == nil {
		log = logger.Noop
	}
	return &generationService{designs: designs, providers: providers, storage: store, log: log}
}

func (s *generationService) Generate(ctx context.Context, designID design.ID, authorID string, in design.GenerateInput) (*design.Version, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, ai.ErrEmptyPrompt
	}
	if s.providers == nil || len(s.providers.Names()) == 0 {
		return nil, ErrGenerationDisabled
	}
	provider, err := s.providers.Get(in.Provider)
	if err != nil {
		return nil, err
	}

	d, err := s.designs.GetDesign(ctx, designID)
	if err != nil {
		return nil, err
	}
	req := ai.Request{Prompt: prompt}
	if d.CurrentVersion > 0 {
		current, err := s.designs.GetVersion(ctx, designID, d.CurrentVersion)
		if err != nil {
			return nil, err
		}
		req.Elements = current.Elements
	}

	result, err := provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var imageURL, imageKey string
	if len(result.Image) > 0 {
		if s.storage == nil {
			s.log.Warnf("design=%s generated image dropped: storage disabled", designID)
		} else {
			imageKey = storage.DesignKey(string(designID), storage.KindGenerated, uuid.NewString()+".png")
			contentType := result.ImageType
			if contentType == "" {
				contentType = "image/png"
			}
			imageURL, err = s.storage.PutObject(ctx, storage.UploadInput{
				Key:         imageKey,
				ContentType: contentType,
				Body:        bytes.NewReader(result.Image),
				Size:        int64(len(result.Image)),
			})
			if err != nil {
				return nil, fmt.Errorf("store generated image: %w", err)
			}
		}
	}

	s.log.Infof("design=%s generated with provider=%s model=%s", designID, provider.Name(), result.Model)
	v, err := s.designs.SaveVersion(ctx, designID, authorID, design.SaveVersionInput{
		Elements: result.Elements,
		Prompt:   prompt,
		Provider: provider.Name(),
		ImageURL: imageURL,
	})
	if err != nil && imageKey != "" {
		if derr := s.storage.DeleteObject(ctx, imageKey); derr != nil {
			s.log.Warnf("design=%s orphaned image %s: %v", designID, imageKey, derr)
		}
	}
	return v, err
}
