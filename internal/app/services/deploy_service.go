package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/domain/design"
	"github.com/faeln1/go-mockup-api/pkg/logger"
)

var ErrNothingToDeploy = errors.New("design has no saved version")

type DeployService interface {
	Deploy(ctx context.Context, designID design.ID, in design.DeployInput) (*design.Deployment, error)
	List(ctx context.Context, designID design.ID) ([]*design.Deployment, error)
	Targets() []string
}

type deployService struct {
	designs    DesignService
	repo       repositories.DeploymentRepository
	dispatcher DeployDispatcher
	log        logger.Logger
}

func NewDeployService(designs DesignService, repo repositories.DeploymentRepository, dispatcher DeployDispatcher, log logger.Logger) DeployService {
	if log == nil {
		log = logger.Noop
	}
	return &deployService{designs: designs, repo: repo, dispatcher: dispatcher, log: log}
}

func (s *deployService) Targets() []string { return s.dispatcher.Targets() }

// Deploy records a pending deployment, calls the target hook and stores the
// outcome. A failed hook still returns the (failed) record with a nil error.
func (s *deployService) Deploy(ctx context.Context, designID design.ID, in design.DeployInput) (*design.Deployment, error) {
	target := strings.ToLower(strings.TrimSpace(in.Target))
	if !containsTarget(s.dispatcher.Targets(), target) {
		return nil, ErrUnknownTarget
	}
	d, err := s.designs.GetDesign(ctx, designID)
	if err != nil {
		return nil, err
	}
	number := in.Version
	if number == 0 {
		number = d.CurrentVersion
	}
	if number == 0 {
		return nil, ErrNothingToDeploy
	}
	v, err := s.designs.GetVersion(ctx, designID, number)
	if err != nil {
		return nil, err
	}

	dep := &design.Deployment{
		ID:        design.ID(uuid.NewString()),
		DesignID:  designID,
		VersionID: v.ID,
		Version:   v.Number,
		Target:    target,
		Status:    design.DeploymentPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, dep); err != nil {
		return nil, err
	}

	url, err := s.dispatcher.Dispatch(ctx, target, d, v)
	if err != nil {
		dep.Status = design.DeploymentFailed
		dep.Error = err.Error()
		s.log.Warnf("deployment %s of design=%s failed: %v", dep.ID, designID, err)
	} else {
		dep.Status = design.DeploymentSucceeded
		dep.URL = url
		s.log.Infof("deployment %s of design=%s v%d to %s succeeded", dep.ID, designID, v.Number, target)
	}
	if err := s.repo.Update(ctx, dep); err != nil {
		return nil, err
	}
	return dep, nil
}

func (s *deployService) List(ctx context.Context, designID design.ID) ([]*design.Deployment, error) {
	if _, err := s.designs.GetDesign(ctx, designID); err != nil {
		return nil, err
	}
	return s.repo.ListByDesign(ctx, designID)
}

func containsTarget(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
