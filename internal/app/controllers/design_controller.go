package controllers

import (
	"errors"
	"net/http"

	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/domain/design"
)

type DesignController struct {
	designs    services.DesignService
	generation services.GenerationService
	assets     services.AssetService
	deploys    services.DeployService
}

func NewDesignController(designs services.DesignService, generation services.GenerationService, assets services.AssetService, deploys services.DeployService) *DesignController {
	return &DesignController{designs: designs, generation: generation, assets: assets, deploys: deploys}
}

// owned loads the design and answers 404 when its project belongs to someone
// other than the caller.
func (c *DesignController) owned(w http.ResponseWriter, r *http.Request, designID string) (*design.Design, bool) {
	d, owner, err := c.designs.DesignOwner(r.Context(), design.ID(designID))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if id := caller(r); !id.Master && owner != id.UserID {
		writeError(w, http.StatusNotFound, repositories.ErrNotFound)
		return nil, false
	}
	return d, true
}

func (c *DesignController) Get(w http.ResponseWriter, r *http.Request, designID string) {
	d, ok := c.owned(w, r, designID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (c *DesignController) SaveVersion(w http.ResponseWriter, r *http.Request, designID string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	var in design.SaveVersionInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := c.designs.SaveVersion(r.Context(), design.ID(designID), caller(r).UserID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (c *DesignController) ListVersions(w http.ResponseWriter, r *http.Request, designID string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	items, err := c.designs.ListVersions(r.Context(), design.ID(designID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (c *DesignController) GetVersion(w http.ResponseWriter, r *http.Request, designID, number string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	n, err := parseVersion(number)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	v, err := c.designs.GetVersion(r.Context(), design.ID(designID), n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (c *DesignController) RestoreVersion(w http.ResponseWriter, r *http.Request, designID, number string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	n, err := parseVersion(number)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	v, err := c.designs.RestoreVersion(r.Context(), design.ID(designID), n, caller(r).UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (c *DesignController) Generate(w http.ResponseWriter, r *http.Request, designID string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	var in design.GenerateInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := c.generation.Generate(r.Context(), design.ID(designID), caller(r).UserID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// UploadAsset accepts a multipart form with a single "file" field.
func (c *DesignController) UploadAsset(w http.ResponseWriter, r *http.Request, designID string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAssetSize+1<<20)
	if err := r.ParseMultipartForm(services.MaxAssetSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, services.ErrAssetTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	asset, err := c.assets.Upload(r.Context(), design.ID(designID), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (c *DesignController) Deploy(w http.ResponseWriter, r *http.Request, designID string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	var in design.DeployInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dep, err := c.deploys.Deploy(r.Context(), design.ID(designID), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if dep.Status == design.DeploymentFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, dep)
}

func (c *DesignController) ListDeployments(w http.ResponseWriter, r *http.Request, designID string) {
	if _, ok := c.owned(w, r, designID); !ok {
		return
	}
	items, err := c.deploys.List(r.Context(), design.ID(designID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"targets":     c.deploys.Targets(),
		"deployments": items,
	})
}
