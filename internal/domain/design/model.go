package design

import (
	"encoding/json"
	"time"
)

type ID string

const MaxNameLength = 200

type Project struct {
	ID          ID        `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Design is one editable mockup. RoomID names its collaboration room.
type Design struct {
	ID             ID        `json:"id"`
	ProjectID      ID        `json:"projectId"`
	Name           string    `json:"name"`
	RoomID         string    `json:"roomId"`
	CurrentVersion int       `json:"currentVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Version is an immutable snapshot of a design's element graph.
type Version struct {
	ID        ID              `json:"id"`
	DesignID  ID              `json:"designId"`
	Number    int             `json:"number"`
	Elements  json.RawMessage `json:"elements"`
	Prompt    string          `json:"prompt,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	AuthorID  string          `json:"authorId"`
	CreatedAt time.Time       `json:"createdAt"`
}

type DeploymentStatus string

const (
	DeploymentPending   DeploymentStatus = "pending"
	DeploymentSucceeded DeploymentStatus = "succeeded"
	DeploymentFailed    DeploymentStatus = "failed"
)

type Deployment struct {
	ID        ID               `json:"id"`
	DesignID  ID               `json:"designId"`
	VersionID ID               `json:"versionId"`
	Version   int              `json:"version"`
	Target    string           `json:"target"`
	Status    DeploymentStatus `json:"status"`
	URL       string           `json:"url,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateDesignInput struct {
	Name     string          `json:"name"`
	RoomID   string          `json:"roomId,omitempty"`
	Elements json.RawMessage `json:"elements,omitempty"`
}

type SaveVersionInput struct {
	Elements json.RawMessage `json:"elements"`
	Prompt   string          `json:"prompt,omitempty"`
	Provider string          `json:"provider,omitempty"`
	ImageURL string          `json:"imageUrl,omitempty"`
}

type GenerateInput struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
}

type DeployInput struct {
	Target  string `json:"target"`
	Version int    `json:"version,omitempty"` // 0 deploys the current version
}

// DefaultRoomID is the collaboration room used when a design names none.
func DefaultRoomID(id ID) string {
	return "design:" + string(id)
}
