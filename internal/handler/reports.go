package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/service"
	"github.com/slabscan/api/pkg/response"
)

type ReportHandler struct {
	service   *service.ReportService
	validator *validator.Validate
}

func NewReportHandler(svc *service.ReportService, v *validator.Validate) *ReportHandler {
	return &ReportHandler{
		service:   svc,
		validator: v,
	}
}

// Parse handles POST /api/reports/parse. An invalid result is still returned
// with its validation verdict; nothing is stored.
func (h *ReportHandler) Parse(c *fiber.Ctx) error {
	var req model.ParseReportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return response.OK(c, h.service.Parse(req.Report))
}

// Result handles GET /api/results/:cardId
func (h *ReportHandler) Result(c *fiber.Ctx) error {
	cardID := c.Params("cardId")
	if cardID == "" {
		return response.ValidationError(c, "Card ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), cardID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			return response.NotFound(c, "Result not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
