package repositories

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/faeln1/go-mockup-api/internal/domain/design"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type DesignRepository interface {
	CreateProject(ctx context.Context, p *design.Project) error
	ListProjects(ctx context.Context, ownerID string) ([]*design.Project, error)
	GetProject(ctx context.Context, id design.ID) (*design.Project, error)
	DeleteProject(ctx context.Context, id design.ID) error

	CreateDesign(ctx context.Context, d *design.Design) error
	ListDesigns(ctx context.Context, projectID design.ID) ([]*design.Design, error)
	GetDesign(ctx context.Context, id design.ID) (*design.Design, error)
	// GetDesignByRoom finds the design bound to a collaboration room.
	GetDesignByRoom(ctx context.Context, roomID string) (*design.Design, error)

	// AppendVersion numbers v after the design's current version and moves
	// the design's CurrentVersion forward in the same step.
	AppendVersion(ctx context.Context, v *design.Version) error
	ListVersions(ctx context.Context, designID design.ID) ([]*design.Version, error)
	GetVersion(ctx context.Context, designID design.ID, number int) (*design.Version, error)
}

type inMemoryDesignRepo struct {
	mu       sync.RWMutex
	projects map[design.ID]*design.Project
	designs  map[design.ID]*design.Design
	versions map[design.ID][]*design.Version
}

func NewInMemoryDesignRepo() DesignRepository {
	return &inMemoryDesignRepo{
		projects: make(map[design.ID]*design.Project),
		designs:  make(map[design.ID]*design.Design),
		versions: make(map[design.ID][]*design.Version),
	}
}

func (r *inMemoryDesignRepo) CreateProject(ctx context.Context, p *design.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[p.ID]; exists {
		return ErrAlreadyExists
	}
	for _, existing := range r.projects {
		if existing.OwnerID == p.OwnerID && existing.Name == p.Name {
			return ErrAlreadyExists
		}
	}
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *inMemoryDesignRepo) ListProjects(ctx context.Context, ownerID string) ([]*design.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*design.Project, 0, len(r.projects))
	for _, p := range r.projects {
		if ownerID != "" && p.OwnerID != ownerID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *inMemoryDesignRepo) GetProject(ctx context.Context, id design.ID) (*design.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryDesignRepo) DeleteProject(ctx context.Context, id design.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return ErrNotFound
	}
	for did, d := range r.designs {
		if d.ProjectID == id {
			delete(r.designs, did)
			delete(r.versions, did)
		}
	}
	delete(r.projects, id)
	return nil
}

func (r *inMemoryDesignRepo) CreateDesign(ctx context.Context, d *design.Design) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[d.ProjectID]; !ok {
		return ErrNotFound
	}
	if _, exists := r.designs[d.ID]; exists {
		return ErrAlreadyExists
	}
	for _, existing := range r.designs {
		if existing.ProjectID == d.ProjectID && existing.Name == d.Name {
			return ErrAlreadyExists
		}
		if existing.RoomID == d.RoomID {
			return ErrAlreadyExists
		}
	}
	cp := *d
	r.designs[d.ID] = &cp
	return nil
}

func (r *inMemoryDesignRepo) GetDesignByRoom(ctx context.Context, roomID string) (*design.Design, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.designs {
		if d.RoomID == roomID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *inMemoryDesignRepo) ListDesigns(ctx context.Context, projectID design.ID) ([]*design.Design, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*design.Design, 0)
	for _, d := range r.designs {
		if d.ProjectID != projectID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *inMemoryDesignRepo) GetDesign(ctx context.Context, id design.ID) (*design.Design, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.designs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *inMemoryDesignRepo) AppendVersion(ctx context.Context, v *design.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.designs[v.DesignID]
	if !ok {
		return ErrNotFound
	}
	v.Number = d.CurrentVersion + 1
	cp := *v
	cp.Elements = append([]byte(nil), v.Elements...)
	r.versions[v.DesignID] = append(r.versions[v.DesignID], &cp)
	d.CurrentVersion = v.Number
	d.UpdatedAt = v.CreatedAt
	return nil
}

func (r *inMemoryDesignRepo) ListVersions(ctx context.Context, designID design.ID) ([]*design.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.designs[designID]; !ok {
		return nil, ErrNotFound
	}
	list := r.versions[designID]
	out := make([]*design.Version, 0, len(list))
	for _, v := range list {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (r *inMemoryDesignRepo) GetVersion(ctx context.Context, designID design.ID, number int) (*design.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[designID] {
		if v.Number == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
