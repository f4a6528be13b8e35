package controllers

import (
	"net/http"

	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/domain/design"
)

type ProjectController struct {
	service services.DesignService
}

func NewProjectController(s services.DesignService) *ProjectController {
	return &ProjectController{service: s}
}

func (c *ProjectController) Create(w http.ResponseWriter, r *http.Request) {
	var in design.CreateProjectInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := c.service.CreateProject(r.Context(), caller(r).UserID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// List returns the caller's projects; the master token sees all of them.
func (c *ProjectController) List(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	owner := id.UserID
	if id.Master {
		owner = r.URL.Query().Get("ownerId")
	}
	items, err := c.service.ListProjects(r.Context(), owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (c *ProjectController) Get(w http.ResponseWriter, r *http.Request, projectID string) {
	p, ok := c.owned(w, r, projectID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *ProjectController) Delete(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := c.owned(w, r, projectID); !ok {
		return
	}
	if err := c.service.DeleteProject(r.Context(), design.ID(projectID)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *ProjectController) CreateDesign(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := c.owned(w, r, projectID); !ok {
		return
	}
	var in design.CreateDesignInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := c.service.CreateDesign(r.Context(), design.ID(projectID), caller(r).UserID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (c *ProjectController) ListDesigns(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := c.owned(w, r, projectID); !ok {
		return
	}
	items, err := c.service.ListDesigns(r.Context(), design.ID(projectID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// owned hides projects of other owners behind a 404.
func (c *ProjectController) owned(w http.ResponseWriter, r *http.Request, projectID string) (*design.Project, bool) {
	p, err := c.service.GetProject(r.Context(), design.ID(projectID))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if id := caller(r); !id.Master && p.OwnerID != id.UserID {
		writeError(w, http.StatusNotFound, repositories.ErrNotFound)
		return nil, false
	}
	return p, true
}
