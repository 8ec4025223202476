package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/arcfolio/folio_api/dto"
	"github.com/arcfolio/folio_api/shared"
)

type ContactHandler struct {
	contactSvc ContactServiceInterface
}

func NewContactHandler(contactSvc ContactServiceInterface) *ContactHandler {
	return &ContactHandler{
		contactSvc: contactSvc,
	}
}

// @Summary Submit Contact
// @Description This endpoint records a contact-form submission
// @Tags contacts
// @Accept  json
// @Produce json
// @Param submitContactRequest body dto.SubmitContactRequest true "Submit contact request"
// @Success 200 {object} shared.Response{data=dto.SubmitContactResponse}
// @Router /api/v1/contacts [post]
func (h *ContactHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitContactRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.contactSvc.Submit(c.UserContext(), req, shared.GetClientIP(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", resp)
}

// @Summary List Contacts
// @Description This endpoint lists contact submissions, newest first
// @Tags contacts
// @Accept  json
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param intent query string false "Filter by intent"
// @Success 200 {object} shared.Response{data=dto.ListContactsResponse}
// @Router /api/v1/contacts [get]
func (h *ContactHandler) List(c *fiber.Ctx) error {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return shared.NewBadRequestError(err, "Invalid limit")
		}
		limit = n
	}

	resp, err := h.contactSvc.List(c.UserContext(), limit, c.Query("intent"), shared.GetClientIP(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", resp)
}
