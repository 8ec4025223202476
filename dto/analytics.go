package dto

import (
	"time"

	"github.com/arcfolio/folio_api/model"
)

type TrackVisitRequest struct {
	Identifier   string     `json:"identifier" validate:"required,min=1,max=128"`
	UserAgent    string     `json:"user_agent" validate:"omitempty,max=1024"`
	Referrer     string     `json:"referrer" validate:"omitempty,max=2048"`
	ScreenWidth  int        `json:"screen_width" validate:"omitempty,min=0"`
	ScreenHeight int        `json:"screen_height" validate:"omitempty,min=0"`
	Timezone     string     `json:"timezone" validate:"omitempty,max=64"`
	Language     string     `json:"language" validate:"omitempty,max=32"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

func (r TrackVisitRequest) Validate() error {
	return GetValidator().Struct(r)
}

type TrackVisitResponse struct {
	StoreID string `json:"store_id"`
}

// VisitFilters are applied client-side after records are parsed; the
// backing store cannot filter.
type VisitFilters struct {
	DeviceType string
	DateFrom   *time.Time
	DateTo     *time.Time
}

type QueryVisitsResponse struct {
	Count      int                       `json:"count"`
	Total      int                       `json:"total"`
	HasMore    bool                      `json:"has_more"`
	NextCursor string                    `json:"next_cursor,omitempty"`
	Stats      model.VisitStats          `json:"stats"`
	Records    []model.StoredVisitRecord `json:"records"`
}

type ExportResponse struct {
	ObjectKey string `json:"object_key"`
	Records   int    `json:"records"`
}
