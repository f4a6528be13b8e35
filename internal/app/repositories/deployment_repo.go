package repositories

import (
	"context"
	"sync"

	"github.com/faeln1/go-mockup-api/internal/domain/design"
)

type DeploymentRepository interface {
	Create(ctx context.Context, d *design.Deployment) error
	Update(ctx context.Context, d *design.Deployment) error
	ListByDesign(ctx context.Context, designID design.ID) ([]*design.Deployment, error)
}

type inMemoryDeploymentRepo struct {
	mu    sync.RWMutex
	byID  map[design.ID]*design.Deployment
	order []design.ID
}

func NewInMemoryDeploymentRepo() DeploymentRepository {
	return &inMemoryDeploymentRepo{byID: make(map[design.ID]*design.Deployment)}
}

func (r *inMemoryDeploymentRepo) Create(ctx context.Context, d *design.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[d.ID]; exists {
		return ErrAlreadyExists
	}
	cp := *d
	r.byID[d.ID] = &cp
	r.order = append(r.order, d.ID)
	return nil
}

func (r *inMemoryDeploymentRepo) Update(ctx context.Context, d *design.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	r.byID[d.ID] = &cp
	return nil
}

// ListByDesign returns deployments newest first.
func (r *inMemoryDeploymentRepo) ListByDesign(ctx context.Context, designID design.ID) ([]*design.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*design.Deployment, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		d := r.byID[r.order[i]]
		if d.DesignID != designID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}
