package handlers

import (
	"context"

	"github.com/arcfolio/folio_api/dto"
)

type AnalyticsServiceInterface interface {
	Track(ctx context.Context, req dto.TrackVisitRequest, callerIP string) (*dto.TrackVisitResponse, error)
	Query(ctx context.Context, filters dto.VisitFilters, limit int, cursor, callerIP string) (*dto.QueryVisitsResponse, error)
	Export(ctx context.Context, callerIP string) (*dto.ExportResponse, error)
}

type ContactServiceInterface interface {
	Submit(ctx context.Context, req dto.SubmitContactRequest, callerIP string) (*dto.SubmitContactResponse, error)
	List(ctx context.Context, limit int, intent, callerIP string) (*dto.ListContactsResponse, error)
}
