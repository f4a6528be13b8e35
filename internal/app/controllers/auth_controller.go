package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/faeln1/go-mockup-api/internal/platform/auth"
)

type AuthController struct {
	issuer *auth.Issuer
}

func NewAuthController(issuer *auth.Issuer) *AuthController {
	return &AuthController{issuer: issuer}
}

type issueTokenRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Issue mints a user JWT. Only the master token may call it.
func (c *AuthController) Issue(w http.ResponseWriter, r *http.Request) {
	if id, _ := auth.FromContext(r.Context()); !id.Master {
		writeError(w, http.StatusForbidden, errors.New("master token required"))
		return
	}
	var in issueTokenRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, exp, err := c.issuer.Issue(auth.Identity{UserID: in.UserID, UserName: in.UserName})
	if err != nil {
		if errors.Is(err, auth.ErrMissingUser) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":     token,
		"tokenType": "Bearer",
		"expiresAt": exp.UTC().Format(time.RFC3339),
		"userId":    in.UserID,
	})
}
