package dto

import (
	"encoding/json"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// CreateContentRequest creates a content item in DRAFT or SCHEDULED.
type CreateContentRequest struct {
	Kind      models.ContentKind `json:"kind" validate:"required"`
	Predicate models.Predicate   `json:"predicate" validate:"-"`
	Payload   json.RawMessage    `json:"payload" validate:"required"`
	AuthorID  *int64             `json:"-"`
}

// UpdateContentRequest edits payload and/or predicate. Status changes go
// through TransitionRequest.
type UpdateContentRequest struct {
	Predicate        *models.Predicate `json:"predicate,omitempty" validate:"-"`
	Payload          json.RawMessage   `json:"payload,omitempty"`
	ForceVersionBump bool              `json:"force_version_bump"`
}

// TransitionRequest moves an item through its lifecycle.
type TransitionRequest struct {
	Status models.ContentStatus `json:"status" validate:"required,oneof=DRAFT SCHEDULED PUBLISHED ARCHIVED"`
}

// FeedRequest carries feed query parameters.
type FeedRequest struct {
	Kind    string `form:"kind"`
	Cursor  string `form:"cursor"`
	Limit   int    `form:"limit"`
	Preview bool   `form:"preview"`
}

// ExplainRequest identifies the (user, item) pair to explain.
type ExplainRequest struct {
	UserID  int64 `form:"user_id" validate:"required,gt=0"`
	ItemID  int64 `form:"item_id" validate:"required,gt=0"`
	Preview bool  `form:"preview"`
}

// FanoutExportRequest selects the ledger rows to export.
type FanoutExportRequest struct {
	Format  string `form:"format" validate:"omitempty,oneof=csv pdf"`
	Version *int   `form:"version" validate:"omitempty,gt=0"`
}
