package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/domain/design"
)

var (
	ErrInvalidName     = errors.New("name must be 1-200 characters")
	ErrInvalidElements = errors.New("elements must be a JSON document")
	ErrInvalidVersion  = errors.New("version number must be positive")
)

type DesignService interface {
	CreateProject(ctx context.Context, ownerID string, in design.CreateProjectInput) (*design.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]*design.Project, error)
	GetProject(ctx context.Context, id design.ID) (*design.Project, error)
	DeleteProject(ctx context.Context, id design.ID) error

	CreateDesign(ctx context.Context, projectID design.ID, authorID string, in design.CreateDesignInput) (*design.Design, error)
	ListDesigns(ctx context.Context, projectID design.ID) ([]*design.Design, error)
	GetDesign(ctx context.Context, id design.ID) (*design.Design, error)
	// DesignOwner returns the design along with the owner of its project.
	DesignOwner(ctx context.Context, id design.ID) (*design.Design, string, error)
	// RoomOwner reports who owns the design bound to roomID. bound is false
	// for rooms no design claims.
	RoomOwner(ctx context.Context, roomID string) (ownerID string, bound bool, err error)

	SaveVersion(ctx context.Context, designID design.ID, authorID string, in design.SaveVersionInput) (*design.Version, error)
	ListVersions(ctx context.Context, designID design.ID) ([]*design.Version, error)
	GetVersion(ctx context.Context, designID design.ID, number int) (*design.Version, error)
	// RestoreVersion copies an old version forward as a new version.
	RestoreVersion(ctx context.Context, designID design.ID, number int, authorID string) (*design.Version, error)
}

type designService struct {
	repo repositories.DesignRepository
	now  func() time.Time
}

func NewDesignService(repo repositories.DesignRepository) DesignService {
	return &designService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > design.MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func (s *designService) CreateProject(ctx context.Context, ownerID string, in design.CreateProjectInput) (*design.Project, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	now := s.now()
	p := &design.Project{
		ID:          design.ID(uuid.NewString()),
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	return p, nil
}

func (s *designService) ListProjects(ctx context.Context, ownerID string) ([]*design.Project, error) {
	return s.repo.ListProjects(ctx, ownerID)
}

func (s *designService) GetProject(ctx context.Context, id design.ID) (*design.Project, error) {
	return s.repo.GetProject(ctx, id)
}

func (s *designService) DeleteProject(ctx context.Context, id design.ID) error {
	return s.repo.DeleteProject(ctx, id)
}

func (s *designService) CreateDesign(ctx context.Context, projectID design.ID, authorID string, in design.CreateDesignInput) (*design.Design, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	if len(in.Elements) > 0 && !json.Valid(in.Elements) {
		return nil, ErrInvalidElements
	}
	now := s.now()
	id := design.ID(uuid.NewString())
	roomID := strings.TrimSpace(in.RoomID)
	if roomID == "" {
		roomID = design.DefaultRoomID(id)
	}
	d := &design.Design{
		ID:        id,
		ProjectID: projectID,
		Name:      name,
		RoomID:    roomID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateDesign(ctx, d); err != nil {
		return nil, fmt.Errorf("create design %q: %w", name, err)
	}
	if len(in.Elements) > 0 {
		v, err := s.SaveVersion(ctx, d.ID, authorID, design.SaveVersionInput{Elements: in.Elements})
		if err != nil {
			return nil, err
		}
		d.CurrentVersion = v.Number
		d.UpdatedAt = v.CreatedAt
	}
	return d, nil
}

func (s *designService) ListDesigns(ctx context.Context, projectID design.ID) ([]*design.Design, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListDesigns(ctx, projectID)
}

func (s *designService) GetDesign(ctx context.Context, id design.ID) (*design.Design, error) {
	return s.repo.GetDesign(ctx, id)
}

func (s *designService) DesignOwner(ctx context.Context, id design.ID) (*design.Design, string, error) {
	d, err := s.repo.GetDesign(ctx, id)
	if err != nil {
		return nil, "", err
	}
	p, err := s.repo.GetProject(ctx, d.ProjectID)
	if err != nil {
		return nil, "", err
	}
	return d, p.OwnerID, nil
}

func (s *designService) RoomOwner(ctx context.Context, roomID string) (string, bool, error) {
	d, err := s.repo.GetDesignByRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	_, owner, err := s.DesignOwner(ctx, d.ID)
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

func (s *designService) SaveVersion(ctx context.Context, designID design.ID, authorID string, in design.SaveVersionInput) (*design.Version, error) {
	if len(in.Elements) == 0 || !json.Valid(in.Elements) {
		return nil, ErrInvalidElements
	}
	v := &design.Version{
		ID:        design.ID(uuid.NewString()),
		DesignID:  designID,
		Elements:  in.Elements,
		Prompt:    strings.TrimSpace(in.Prompt),
		Provider:  strings.TrimSpace(in.Provider),
		ImageURL:  strings.TrimSpace(in.ImageURL),
		AuthorID:  authorID,
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("save version of %s: %w", designID, err)
	}
	return v, nil
}

func (s *designService) ListVersions(ctx context.Context, designID design.ID) ([]*design.Version, error) {
	return s.repo.ListVersions(ctx, designID)
}

func (s *designService) GetVersion(ctx context.Context, designID design.ID, number int) (*design.Version, error) {
	if number <= 0 {
		return nil, ErrInvalidVersion
	}
	return s.repo.GetVersion(ctx, designID, number)
}

func (s *designService) RestoreVersion(ctx context.Context, designID design.ID, number int, authorID string) (*design.Version, error) {
	old, err := s.GetVersion(ctx, designID, number)
	if err != nil {
		return nil, err
	}
	return s.SaveVersion(ctx, designID, authorID, design.SaveVersionInput{
		Elements: old.Elements,
		Prompt:   old.Prompt,
		Provider: old.Provider,
		ImageURL: old.ImageURL,
	})
}
