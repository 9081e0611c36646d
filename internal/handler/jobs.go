package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/service"
	"github.com/slabscan/api/internal/store"
	"github.com/slabscan/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/jobs
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		if errors.Is(err, store.ErrJobExists) {
			return response.Conflict(c, "Job already exists")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, job)
}

// List handles GET /api/jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	return response.OK(c, model.JobListResponse{Jobs: h.service.List(c.Context())})
}

// Get handles GET /api/jobs/:jobId
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Dismiss handles DELETE /api/jobs/:jobId
func (h *JobHandler) Dismiss(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.service.Dismiss(c.Context(), jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

// ClearCompleted handles POST /api/jobs/clear-completed
func (h *JobHandler) ClearCompleted(c *fiber.Ctx) error {
	removed := h.service.ClearCompleted(c.Context())
	return response.OK(c, model.ClearCompletedResponse{Removed: removed})
}
