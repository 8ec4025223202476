package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arcfolio/folio_api/dto"
	"github.com/arcfolio/folio_api/shared"
)

type AnalyticsHandler struct {
	analyticsSvc AnalyticsServiceInterface
}

func NewAnalyticsHandler(analyticsSvc AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsSvc: analyticsSvc,
	}
}

// @Summary Track Visit
// @Description This endpoint records a visitor analytics event
// @Tags analytics
// @Accept  json
// @Produce json
// @Param trackVisitRequest body dto.TrackVisitRequest true "Track visit request"
// @Success 200 {object} shared.Response{data=dto.TrackVisitResponse}
// @Router /api/v1/analytics [post]
func (h *AnalyticsHandler) Track(c *fiber.Ctx) error {
	var req dto.TrackVisitRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.analyticsSvc.Track(c.UserContext(), req, shared.GetClientIP(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", resp)
}

// @Summary Query Visits
// @Description This endpoint returns a filtered, cursor-paginated page of visit records with per-page stats
// @Tags analytics
// @Accept  json
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param cursor query string false "Resume token from a previous page"
// @Param deviceType query string false "Filter by device type"
// @Param dateFrom query string false "Earliest record timestamp (RFC3339 or YYYY-MM-DD)"
// @Param dateTo query string false "Latest record timestamp (RFC3339 or YYYY-MM-DD)"
// @Success 200 {object} shared.Response{data=dto.QueryVisitsResponse}
// @Router /api/v1/analytics [get]
func (h *AnalyticsHandler) Query(c *fiber.Ctx) error {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return shared.NewBadRequestError(err, "Invalid limit")
		}
		limit = n
	}

	filters := dto.VisitFilters{
		DeviceType: c.Query("deviceType"),
	}

	if v := c.Query("dateFrom"); v != "" {
		ts, err := parseQueryTime(v)
		if err != nil {
			return shared.NewBadRequestError(err, "Invalid dateFrom")
		}
		filters.DateFrom = &ts
	}

	if v := c.Query("dateTo"); v != "" {
		ts, err := parseQueryTime(v)
		if err != nil {
			return shared.NewBadRequestError(err, "Invalid dateTo")
		}
		filters.DateTo = &ts
	}

	resp, err := h.analyticsSvc.Query(c.UserContext(), filters, limit, c.Query("cursor"), shared.GetClientIP(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", resp)
}

// @Summary Export Visits
// @Description This endpoint archives all reachable visit records to cold storage
// @Tags analytics
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.ExportResponse}
// @Router /api/v1/analytics/export [post]
func (h *AnalyticsHandler) Export(c *fiber.Ctx) error {
	resp, err := h.analyticsSvc.Export(c.UserContext(), shared.GetClientIP(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", resp)
}

func parseQueryTime(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", v)
}
