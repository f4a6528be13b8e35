package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/platform/ai"
	"github.com/faeln1/go-mockup-api/internal/platform/auth"
)

var ErrInvalidParam = errors.New("invalid param")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeServiceError maps service and repository sentinels to status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, services.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, repositories.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, services.ErrInvalidName),
		errors.Is(err, services.ErrInvalidElements),
		errors.Is(err, services.ErrInvalidVersion),
		errors.Is(err, services.ErrUnknownTarget),
		errors.Is(err, services.ErrNothingToDeploy),
		errors.Is(err, ai.ErrEmptyPrompt),
		errors.Is(err, ai.ErrUnknownProvider),
		errors.Is(err, ErrInvalidParam):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrAssetTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, services.ErrStorageDisabled),
		errors.Is(err, services.ErrGenerationDisabled),
		errors.Is(err, auth.ErrNoSecret):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrInvalidParam
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 8<<20)).Decode(v); err != nil {
		return errors.Join(ErrInvalidParam, err)
	}
	return nil
}

func parseVersion(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, services.ErrInvalidVersion
	}
	return n, nil
}

// caller returns the authenticated identity; master callers without a user
// act as "master".
func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	if id.UserID == "" && id.Master {
		id.UserID = "master"
	}
	return id
}
